package api

import (
	"errors"
	"net/http"

	"github.com/warp/job-ledger/billing"
)

var (
	msgRecordCreated  = "Record created successfully"
	msgRecordsFetched = "Records fetched successfully"
	msgRecordFetched  = "Record fetched successfully"
	msgRecordDeleted  = "Record deleted successfully"

	msgRecordUpdated = Message{
		English: "Record updated successfully",
		Hindi:   "रिकॉर्ड सफलतापूर्वक अपडेट किया गया",
	}
	msgPaymentAdded = Message{
		English: "Payment added successfully",
		Hindi:   "भुगतान सफलतापूर्वक जोड़ा गया",
	}
	msgNotFound = Message{
		English: "Record not found",
		Hindi:   "रिकॉर्ड नहीं मिला",
	}
	msgFullyPaid = Message{
		English: "Total payments already equal or exceed the total amount. No further payments allowed.",
		Hindi:   "कुल भुगतान पहले से ही कुल राशि के बराबर या उससे अधिक है। आगे भुगतान की अनुमति नहीं है।",
	}
	msgConflict = Message{
		English: "Record was modified by another request. Please retry.",
		Hindi:   "रिकॉर्ड किसी अन्य अनुरोध द्वारा बदला गया। कृपया पुनः प्रयास करें।",
	}
)

func errorMessage(english string) Message {
	return Message{English: english, Hindi: "त्रुटि: " + english}
}

func exceedsRemainingMessage(remaining string) Message {
	return Message{
		English: "Payment exceeds the remaining amount. Remaining amount: " + remaining,
		Hindi:   "भुगतान शेष राशि से अधिक है। शेष राशि: " + remaining,
	}
}

// classifyError maps a service error to a status code and envelope.
func classifyError(err error) (int, Envelope) {
	env := Envelope{Status: false, Data: false}

	var (
		verr *billing.ValidationError
		over *billing.OverpaymentError
	)
	switch {
	case errors.As(err, &verr):
		env.Message = errorMessage("Validation failed")
		env.Errors = verr.Fields
		return http.StatusBadRequest, env

	case errors.As(err, &over):
		if over.Reason == billing.OverpaymentFullyPaid {
			env.Message = msgFullyPaid
		} else {
			env.Message = exceedsRemainingMessage(over.Remaining.String())
		}
		remaining := Amount(over.Remaining)
		env.RemainingAmount = &remaining
		return http.StatusBadRequest, env

	case billing.IsNotFound(err):
		env.Message = msgNotFound
		return http.StatusNotFound, env

	case billing.IsRetryable(err):
		env.Message = msgConflict
		return http.StatusConflict, env

	case errors.Is(err, billing.ErrStoreUnavailable):
		env.Message = errorMessage("Record store unavailable")
		return http.StatusServiceUnavailable, env

	default:
		env.Message = errorMessage(err.Error())
		return http.StatusInternalServerError, env
	}
}
