package persistent

import (
	"perkloop/services/redemption/internal/entity"
	"perkloop/services/redemption/internal/model"
)

func ToRedemptionEntity(m *model.RedemptionModel) *entity.Redemption {
	if m == nil {
		return nil
	}

	return &entity.Redemption{
		ID:            m.ID,
		UserID:        m.UserID,
		SellerID:      m.SellerID,
		Points:        m.Points,
		OfferID:       m.OfferID,
		OfferName:     m.OfferName,
		Status:        entity.RedemptionStatus(m.Status),
		QRData:        m.QRData,
		SellerNotes:   m.SellerNotes,
		CustomerNotes: m.CustomerNotes,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		ExpiresAt:     m.ExpiresAt,
		RedeemedAt:    m.RedeemedAt,
	}
}

func ToRedemptionModel(e *entity.Redemption) *model.RedemptionModel {
	if e == nil {
		return nil
	}

	return &model.RedemptionModel{
		ID:            e.ID,
		UserID:        e.UserID,
		SellerID:      e.SellerID,
		Points:        e.Points,
		OfferID:       e.OfferID,
		OfferName:     e.OfferName,
		Status:        string(e.Status),
		QRData:        e.QRData,
		SellerNotes:   e.SellerNotes,
		CustomerNotes: e.CustomerNotes,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
		ExpiresAt:     e.ExpiresAt,
		RedeemedAt:    e.RedeemedAt,
	}
}

func ToHoldEntity(m *model.HoldModel) *entity.Hold {
	if m == nil {
		return nil
	}

	return &entity.Hold{
		ID:           m.ID,
		UserID:       m.UserID,
		SellerID:     m.SellerID,
		RedemptionID: m.RedemptionID,
		Points:       m.Points,
		Status:       entity.HoldStatus(m.Status),
		CreatedAt:    m.CreatedAt,
		ReleasedAt:   m.ReleasedAt,
	}
}

func ToTransactionEntity(m *model.TransactionModel) *entity.Transaction {
	if m == nil {
		return nil
	}

	redemptionID := ""
	if m.RedemptionID != nil {
		redemptionID = *m.RedemptionID
	}

	return &entity.Transaction{
		ID:           m.ID,
		UserID:       m.UserID,
		SellerID:     m.SellerID,
		Type:         m.Type,
		Points:       m.Points,
		BasePoints:   m.BasePoints,
		BonusPoints:  m.BonusPoints,
		FirstScan:    m.FirstScan,
		RedemptionID: redemptionID,
		CreatedAt:    m.CreatedAt,
	}
}
