package sqlite

import (
	"encoding/json"
	"fmt"

	"github.com/zjrosen/linkctl/internal/registry/domain"
)

// RecordModel represents the database row for the records table.
type RecordModel struct {
	NetworkID          int64
	RoutingID          string
	HandlerAddress     string
	LinkerAddress      string
	FeeTokenAddress    string
	NFTFeeTokenAddress string
	NFTFeeAmount       string
	CrossChainGasLimit string
	EntityAddress      string
	Progress           *string // nullable, JSON encoded
	CreatedAt          int64   // Unix timestamp
	UpdatedAt          int64   // Unix timestamp
}

// toRecordModel converts a domain record to a row.
func toRecordModel(id domain.NetworkID, rec domain.Record) (*RecordModel, error) {
	m := &RecordModel{
		NetworkID:          int64(id),
		RoutingID:          string(rec.RoutingID),
		HandlerAddress:     rec.HandlerAddress,
		LinkerAddress:      rec.LinkerAddress,
		FeeTokenAddress:    rec.FeeTokenAddress,
		NFTFeeTokenAddress: rec.NFTFeeTokenAddress,
		NFTFeeAmount:       string(rec.NFTFeeAmount),
		CrossChainGasLimit: string(rec.CrossChainGasLimit),
		EntityAddress:      rec.EntityAddress,
	}
	if rec.Progress != nil {
		data, err := json.Marshal(rec.Progress)
		if err != nil {
			return nil, fmt.Errorf("encoding progress: %w", err)
		}
		s := string(data)
		m.Progress = &s
	}
	return m, nil
}

// toDomain converts a row back to its network id and record.
func (m *RecordModel) toDomain() (domain.NetworkID, domain.Record, error) {
	rec := domain.Record{
		RoutingID:          domain.Scalar(m.RoutingID),
		HandlerAddress:     m.HandlerAddress,
		LinkerAddress:      m.LinkerAddress,
		FeeTokenAddress:    m.FeeTokenAddress,
		NFTFeeTokenAddress: m.NFTFeeTokenAddress,
		NFTFeeAmount:       domain.Scalar(m.NFTFeeAmount),
		CrossChainGasLimit: domain.Scalar(m.CrossChainGasLimit),
		EntityAddress:      m.EntityAddress,
	}
	if m.Progress != nil && *m.Progress != "" {
		var p domain.Progress
		if err := json.Unmarshal([]byte(*m.Progress), &p); err != nil {
			return 0, domain.Record{}, fmt.Errorf("decoding progress for network %d: %w", m.NetworkID, err)
		}
		rec.Progress = &p
	}
	return domain.NetworkID(m.NetworkID), rec, nil
}
