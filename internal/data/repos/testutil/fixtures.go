package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/civiclens/civiclens-backend/internal/domain"
)

func SeedProposal(tb testing.TB, ctx context.Context, tx *gorm.DB, caseNumber, region string) *types.Proposal {
	tb.Helper()
	now := time.Now().UTC()
	p := &types.Proposal{
		ID:         uuid.New(),
		CaseNumber: caseNumber,
		RegionName: region,
		Address:    "93 Highland Ave",
		Status:     "Public Hearing",
		Updated:    now,
		Published:  now,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed proposal: %v", err)
	}
	return p
}

func SeedDocument(tb testing.TB, ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, url string) *types.Document {
	tb.Helper()
	d := &types.Document{
		ID:         uuid.New(),
		ProposalID: proposalID,
		URL:        url,
		Title:      "Staff Report",
		Field:      "reports",
	}
	if err := tx.WithContext(ctx).Create(d).Error; err != nil {
		tb.Fatalf("seed document: %v", err)
	}
	return d
}

func SeedImage(tb testing.TB, ctx context.Context, tx *gorm.DB, proposalID uuid.UUID, url, source string) *types.Image {
	tb.Helper()
	img := &types.Image{
		ID:         uuid.New(),
		ProposalID: proposalID,
		URL:        url,
		Source:     source,
	}
	if err := tx.WithContext(ctx).Create(img).Error; err != nil {
		tb.Fatalf("seed image: %v", err)
	}
	return img
}

func SeedParcel(tb testing.TB, ctx context.Context, tx *gorm.DB, region string, shape []byte, minLat, maxLat, minLng, maxLng float64) *types.Parcel {
	tb.Helper()
	p := &types.Parcel{
		ID:         uuid.New(),
		RegionName: region,
		LotNumber:  "12-345",
		Shape:      datatypes.JSON(shape),
		MinLat:     minLat,
		MaxLat:     maxLat,
		MinLng:     minLng,
		MaxLng:     maxLng,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed parcel: %v", err)
	}
	return p
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
