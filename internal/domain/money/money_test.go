package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

func dollars() Currency {
	return Currency{ID: "dollar", Name: "Dollar", Plural: "Dollars", Symbol: "$", DecimalPlaces: 2, StartingBalance: decimal.NewFromInt(100), Default: true}
}

func TestPolicy(t *testing.T) {
	Convey("Given the money policy functions", t, func() {
		limit := decimal.NewFromInt(1000)

		Convey("Truncate rounds toward zero at scale 2", func() {
			So(Truncate(decimal.RequireFromString("25.005")).StringFixed(2), ShouldEqual, "25.00")
			So(Truncate(decimal.RequireFromString("25.999")).StringFixed(2), ShouldEqual, "25.99")
			So(Truncate(decimal.RequireFromString("-1.119")).StringFixed(2), ShouldEqual, "-1.11")
		})

		Convey("Clamp applies only the upper bound", func() {
			So(Clamp(decimal.NewFromInt(5000), limit).Equal(limit), ShouldBeTrue)
			So(Clamp(decimal.NewFromInt(-5), limit).Equal(decimal.NewFromInt(-5)), ShouldBeTrue)
			So(Clamp(limit, limit).Equal(limit), ShouldBeTrue)
		})

		Convey("Normalize truncates before clamping", func() {
			So(Normalize(decimal.RequireFromString("999.999"), limit).StringFixed(2), ShouldEqual, "999.99")
			So(Normalize(decimal.RequireFromString("1000.001"), limit).StringFixed(2), ShouldEqual, "1000.00")
		})

		Convey("ParseAmount accepts non-negative decimals only", func() {
			d, err := ParseAmount(" 12.349 ")
			So(err, ShouldBeNil)
			So(d.StringFixed(2), ShouldEqual, "12.34")

			_, err = ParseAmount("-1")
			So(errors.Is(err, ErrNegativeAmount), ShouldBeTrue)

			_, err = ParseAmount("ten")
			So(errors.Is(err, ErrInvalidAmount), ShouldBeTrue)
		})
	})
}

func TestCurrencyFormat(t *testing.T) {
	Convey("Given a currency", t, func() {
		c := dollars()

		Convey("Format prefixes the symbol and truncates", func() {
			So(c.Format(decimal.RequireFromString("1234.567")), ShouldEqual, "$1234.56")
		})

		Convey("Format honours suffix placement and zero places", func() {
			gems := Currency{ID: "gem", Symbol: "G", SymbolSuffix: true}
			So(gems.Format(decimal.RequireFromString("7.9")), ShouldEqual, "7G")
		})

		Convey("DisplayName picks singular for exactly one", func() {
			So(c.DisplayName(decimal.NewFromInt(1)), ShouldEqual, "Dollar")
			So(c.DisplayName(decimal.NewFromInt(2)), ShouldEqual, "Dollars")
		})
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given currency definitions", t, func() {
		Convey("When exactly one default exists", func() {
			gems := Currency{ID: "gem", StartingBalance: decimal.RequireFromString("0.129")}
			r, err := NewRegistry(decimal.Zero, dollars(), gems)
			So(err, ShouldBeNil)

			Convey("Then lookups and defaults resolve", func() {
				So(r.Default().ID, ShouldEqual, "dollar")
				So(r.IDs(), ShouldResemble, []string{"dollar", "gem"})
				So(r.Cap().Equal(DefaultCap), ShouldBeTrue)

				c, err := r.Resolve("")
				So(err, ShouldBeNil)
				So(c.ID, ShouldEqual, "dollar")

				_, err = r.Resolve("euro")
				So(errors.Is(err, ErrUnknownCurrency), ShouldBeTrue)
			})

			Convey("Then starting balances are normalized", func() {
				So(r.StartingBalance("gem").StringFixed(2), ShouldEqual, "0.12")
				So(r.StartingBalance("missing").IsZero(), ShouldBeTrue)
				g, _ := r.Lookup("gem")
				So(g.Name, ShouldEqual, "gem")
			})
		})

		Convey("When no default exists", func() {
			_, err := NewRegistry(decimal.Zero, Currency{ID: "gem"})
			So(errors.Is(err, ErrNoDefault), ShouldBeTrue)
		})

		Convey("When two defaults exist", func() {
			_, err := NewRegistry(decimal.Zero, dollars(), Currency{ID: "euro", Default: true})
			So(errors.Is(err, ErrMultipleDefaults), ShouldBeTrue)
		})

		Convey("When an id is duplicated or malformed", func() {
			_, err := NewRegistry(decimal.Zero, dollars(), dollars())
			So(errors.Is(err, ErrDuplicateCurrency), ShouldBeTrue)

			_, err = NewRegistry(decimal.Zero, Currency{ID: "Bad-Id", Default: true})
			So(errors.Is(err, ErrInvalidCurrencyID), ShouldBeTrue)
		})
	})
}
