// internal/buybox/selector_test.go
package buybox

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func offer(id, seller, price string) Offer {
	return Offer{
		ID:           id,
		ProductID:    "prod-1",
		SellerID:     seller,
		SiteID:       "site-1",
		SellingPrice: d(price),
		MRP:          d("100"),
		Stock:        50,
		Fulfillment:  FulfillmentStandard,
		PriceActive:  true,
		SellerActive: true,
		SiteActive:   true,
	}
}

type fakeRatings struct {
	ratings map[string]float64
	err     error
	calls   int
}

func (f *fakeRatings) SellerRating(ctx context.Context, sellerID string) (float64, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return f.ratings[sellerID], nil
}

func TestSelectWinner_LowestPriceWinsAllElseEqual(t *testing.T) {
	s := NewSelector(&fakeRatings{ratings: map[string]float64{"a": 0.5, "b": 0.5, "c": 0.5}}, nil)

	got, err := s.SelectWinner(context.Background(), []Offer{
		offer("o1", "a", "90"),
		offer("o2", "b", "95"),
		offer("o3", "c", "80"),
	})
	if err != nil {
		t.Fatalf("SelectWinner() error = %v", err)
	}
	if got.ID != "o3" || !got.SellingPrice.Equal(d("80")) {
		t.Errorf("SelectWinner() = %s at %s, want o3 at 80", got.ID, got.SellingPrice)
	}
}

func TestSelectWinner_Eligibility(t *testing.T) {
	inactivePrice := offer("o1", "a", "10")
	inactivePrice.PriceActive = false
	inactiveSeller := offer("o2", "b", "10")
	inactiveSeller.SellerActive = false
	inactiveSite := offer("o3", "c", "10")
	inactiveSite.SiteActive = false
	free := offer("o4", "d", "0")

	s := NewSelector(nil, nil)
	_, err := s.SelectWinner(context.Background(), []Offer{inactivePrice, inactiveSeller, inactiveSite, free})
	if !errors.Is(err, ErrNoEligibleOffer) {
		t.Fatalf("SelectWinner() error = %v, want ErrNoEligibleOffer", err)
	}

	got, err := s.SelectWinner(context.Background(), []Offer{inactivePrice, offer("o5", "e", "99")})
	if err != nil || got.ID != "o5" {
		t.Errorf("SelectWinner() = (%v, %v), want o5", got, err)
	}
}

func TestRank_ScoreBreakdown(t *testing.T) {
	o := offer("o1", "a", "80")
	o.Fulfillment = FulfillmentPrime
	o.Stock = 250
	s := NewSelector(&fakeRatings{ratings: map[string]float64{"a": 0.9}}, nil)

	ranked, err := s.Rank(context.Background(), []Offer{o})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	got := ranked[0]

	checks := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{"price", got.Price, "0.4"},
		{"rating", got.Rating, "0.9"},
		{"fulfillment", got.Fulfillment, "1"},
		{"stock", got.Stock, "1"},
		// 0.4*0.4 + 0.3*0.9 + 0.2*1 + 0.1*1
		{"total", got.Score, "0.73"},
	}
	for _, c := range checks {
		if !c.got.Equal(d(c.want)) {
			t.Errorf("%s score = %s, want %s", c.name, c.got, c.want)
		}
	}
}

func TestScores(t *testing.T) {
	priceTests := []struct {
		selling, mrp, want string
	}{
		{"100", "100", "0"},
		{"120", "100", "0"},
		{"75", "100", "0.5"},
		{"50", "100", "1"},
		{"10", "100", "1"},
		{"10", "0", "0"},
	}
	for _, tt := range priceTests {
		if got := PriceScore(d(tt.selling), d(tt.mrp)); !got.Equal(d(tt.want)) {
			t.Errorf("PriceScore(%s, %s) = %s, want %s", tt.selling, tt.mrp, got, tt.want)
		}
	}

	fulfillment := map[FulfillmentTier]string{
		FulfillmentPrime:    "1",
		FulfillmentExpress:  "0.8",
		FulfillmentStandard: "0.6",
		"SELF_SHIP":         "0.4",
		"":                  "0.4",
	}
	for tier, want := range fulfillment {
		if got := FulfillmentScore(tier); !got.Equal(d(want)) {
			t.Errorf("FulfillmentScore(%q) = %s, want %s", tier, got, want)
		}
	}

	stockTests := []struct {
		stock int
		want  string
	}{
		{-5, "0"}, {0, "0"}, {25, "0.25"}, {100, "1"}, {1000, "1"},
	}
	for _, tt := range stockTests {
		if got := StockScore(tt.stock); !got.Equal(d(tt.want)) {
			t.Errorf("StockScore(%d) = %s, want %s", tt.stock, got, tt.want)
		}
	}
}

func TestRank_TiesAreDeterministic(t *testing.T) {
	s := NewSelector(nil, nil)
	offers := []Offer{
		offer("o9", "seller-b", "90"),
		offer("o2", "seller-a", "90"),
		offer("o1", "seller-a", "90"),
	}

	ranked, err := s.Rank(context.Background(), offers)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	want := []string{"o1", "o2", "o9"}
	for i, id := range want {
		if ranked[i].Offer.ID != id {
			t.Errorf("Rank()[%d] = %s, want %s", i, ranked[i].Offer.ID, id)
		}
	}
}

func TestRank_RatingFailureScoresZero(t *testing.T) {
	ratings := &fakeRatings{err: errors.New("ratings service down")}
	s := NewSelector(ratings, nil)

	ranked, err := s.Rank(context.Background(), []Offer{offer("o1", "a", "90"), offer("o2", "a", "95")})
	if err != nil {
		t.Fatalf("Rank() error = %v, want nil", err)
	}
	for _, r := range ranked {
		if !r.Rating.IsZero() {
			t.Errorf("offer %s rating = %s, want 0", r.Offer.ID, r.Rating)
		}
	}
	if ratings.calls != 1 {
		t.Errorf("rating lookups = %d, want 1 per seller", ratings.calls)
	}
}

func TestRank_RatingClamped(t *testing.T) {
	s := NewSelector(&fakeRatings{ratings: map[string]float64{"a": 4.5, "b": -1}}, nil)
	ranked, err := s.Rank(context.Background(), []Offer{offer("o1", "a", "90"), offer("o2", "b", "90")})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if !ranked[0].Rating.Equal(d("1")) || !ranked[1].Rating.IsZero() {
		t.Errorf("ratings = (%s, %s), want (1, 0)", ranked[0].Rating, ranked[1].Rating)
	}
}

func TestRank_NonFiniteRatingScoresZero(t *testing.T) {
	s := NewSelector(&fakeRatings{ratings: map[string]float64{
		"a": math.NaN(),
		"b": math.Inf(1),
		"c": math.Inf(-1),
	}}, nil)

	ranked, err := s.Rank(context.Background(), []Offer{
		offer("o1", "a", "90"),
		offer("o2", "b", "90"),
		offer("o3", "c", "90"),
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	for _, r := range ranked {
		if !r.Rating.IsZero() {
			t.Errorf("offer %s rating = %s, want 0", r.Offer.ID, r.Rating)
		}
	}
}

// Property-based test: every score component and the total stay in [0, 1]
func TestScore_PropertyBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("score in [0,1]", prop.ForAll(
		func(sellingCents, mrpCents int64, stock int, rating float64) bool {
			o := offer("o", "s", "1")
			o.SellingPrice = decimal.New(sellingCents, -2)
			o.MRP = decimal.New(mrpCents, -2)
			o.Stock = stock
			sc := score(o, clamp01(decimal.NewFromFloat(rating)))
			for _, v := range []decimal.Decimal{sc.Price, sc.Rating, sc.Fulfillment, sc.Stock, sc.Score} {
				if v.IsNegative() || v.GreaterThan(one) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(1, 1000000),
		gen.Int64Range(0, 1000000),
		gen.IntRange(-10, 10000),
		gen.Float64Range(-2, 2),
	))

	properties.TestingRun(t)
}
