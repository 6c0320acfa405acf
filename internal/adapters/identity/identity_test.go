package identity

import (
	"context"
	"errors"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDirectory(t *testing.T) {
	Convey("Given an empty directory", t, func() {
		ctx := context.Background()
		d := NewDirectory()
		const id = "8d5f3c1a-2b4e-4f6a-9c8d-7e6f5a4b3c2d"

		Convey("Registered names resolve case-insensitively by id", func() {
			So(d.Register(ctx, id, "  Steve "), ShouldBeNil)
			n, ok := d.DisplayName(ctx, strings.ToUpper(id))
			So(ok, ShouldBeTrue)
			So(n, ShouldEqual, "Steve")
			So(d.Len(), ShouldEqual, 1)
		})

		Convey("Unknown and malformed ids do not resolve", func() {
			_, ok := d.DisplayName(ctx, id)
			So(ok, ShouldBeFalse)
			_, ok = d.DisplayName(ctx, "server")
			So(ok, ShouldBeFalse)
		})

		Convey("Invalid input is rejected", func() {
			So(errors.Is(d.Register(ctx, "nope", "x"), ErrInvalidID), ShouldBeTrue)
			So(errors.Is(d.Register(ctx, id, " "), ErrInvalidName), ShouldBeTrue)
			So(errors.Is(d.Register(ctx, id, strings.Repeat("a", 65)), ErrInvalidName), ShouldBeTrue)
		})
	})
}
