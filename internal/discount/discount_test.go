package discount

import (
	"errors"
	"testing"
	"time"

	"commerce-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		d    models.Discount
		want error
	}{
		{"percentage ok", models.Discount{Code: "A", Amount: 100, Unit: models.DiscountUnitPercentage}, nil},
		{"percentage over", models.Discount{Code: "A", Amount: 101, Unit: models.DiscountUnitPercentage}, ErrPercentageRange},
		{"negative", models.Discount{Code: "A", Amount: -1, Unit: models.DiscountUnitPercentage}, ErrNegativeAmount},
		{"currency with types", models.Discount{Code: "A", Amount: 5, Unit: models.DiscountUnitCurrency, ContentTypes: pq.StringArray{"book"}}, ErrCurrencyWithTypes},
		{"percentage with types", models.Discount{Code: "A", Amount: 5, Unit: models.DiscountUnitPercentage, ContentTypes: pq.StringArray{"book"}}, nil},
		{"empty code", models.Discount{Amount: 5, Unit: models.DiscountUnitCurrency}, ErrEmptyCode},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := Validate(&tc.d); !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	if !IsValid(&models.Discount{}, now) {
		t.Fatal("no expiry must be valid")
	}
	if IsValid(&models.Discount{ValidUntil: &past}, now) {
		t.Fatal("expired discount reported valid")
	}
	if !IsValid(&models.Discount{ValidUntil: &future}, now) {
		t.Fatal("future expiry reported invalid")
	}
}

func TestCheckApply_DistinctErrors(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()
	book := models.ProductRef{Type: "book", ID: "1"}
	pen := models.ProductRef{Type: "pen", ID: "2"}
	past := now.Add(-time.Minute)

	restricted := &models.Discount{
		Code: "BOOK", Amount: 10, Unit: models.DiscountUnitPercentage, Usage: models.DiscountUsageUnlimited,
		Products: []models.DiscountProduct{{ProductType: "book", ProductID: "1"}},
	}

	cases := []struct {
		name string
		d    *models.Discount
		req  ApplyRequest
		want error
	}{
		{"not found", nil, ApplyRequest{UserID: owner, Now: now}, ErrNotFound},
		{"not owned", &models.Discount{UserID: &owner}, ApplyRequest{UserID: other, Now: now}, ErrNotOwned},
		{"used", &models.Discount{Usage: models.DiscountUsageOneTime}, ApplyRequest{UserID: owner, Used: true, Now: now}, ErrUsed},
		{"unlimited never used", &models.Discount{Usage: models.DiscountUsageUnlimited}, ApplyRequest{UserID: owner, Used: true, Now: now}, nil},
		{"expired", &models.Discount{ValidUntil: &past}, ApplyRequest{UserID: owner, Now: now}, ErrExpired},
		{"max items", &models.Discount{MaxItems: intPtr(2)}, ApplyRequest{UserID: owner, LineCount: 3, Now: now}, ErrMaxItems},
		{"max items boundary", &models.Discount{MaxItems: intPtr(3)}, ApplyRequest{UserID: owner, LineCount: 3, Now: now}, nil},
		{"product missing", restricted, ApplyRequest{UserID: owner, Lines: []models.ProductRef{pen}, LineCount: 1, Now: now}, ErrProductMissing},
		{"product present", restricted, ApplyRequest{UserID: owner, Lines: []models.ProductRef{pen, book}, LineCount: 2, Now: now}, nil},
		{"owner ok", &models.Discount{UserID: &owner}, ApplyRequest{UserID: owner, Now: now}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := CheckApply(tc.d, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("CheckApply() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestTerms(t *testing.T) {
	d := &models.Discount{
		Amount: 15, Unit: models.DiscountUnitPercentage,
		ContentTypes: pq.StringArray{"course"},
		Products:     []models.DiscountProduct{{ProductType: "book", ProductID: "9"}},
	}
	terms := Terms(d)
	if !terms.AppliesTo(models.ProductRef{Type: "book", ID: "9"}) {
		t.Fatal("listed product must match")
	}
	if terms.AppliesTo(models.ProductRef{Type: "course", ID: "1"}) {
		t.Fatal("product list must win over content types")
	}
	if Terms(nil) != nil {
		t.Fatal("nil discount must give nil terms")
	}
}
