package services

import "carwash/internal/models"

// Допустимые переходы KYC-статусов.
var kycTransitions = map[models.KYCStatus]map[models.KYCStatus]bool{
	models.KYCIncomplete:    {models.KYCPendingReview: true},
	models.KYCPendingReview: {models.KYCVerified: true, models.KYCRejected: true},
	models.KYCRejected:      {models.KYCIncomplete: true}, // resubmit
	models.KYCVerified:      {},                           // финалка
}

func canTransition(current, to models.KYCStatus) bool {
	nexts, ok := kycTransitions[current]
	if !ok {
		return false
	}
	return nexts[to]
}
