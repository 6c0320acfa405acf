package keylock

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestStriped(t *testing.T) {
	Convey("Given a striped lock set", t, func() {
		l := New(WithStripes(8))

		Convey("Lock serializes increments on the same key", func() {
			var wg sync.WaitGroup
			counter := 0
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					unlock := l.Lock("acct", "dollar")
					v := counter
					v++
					counter = v
					unlock()
				}()
			}
			wg.Wait()
			So(counter, ShouldEqual, 50)
		})

		Convey("LockPair works for keys sharing a stripe", func() {
			single := New(WithStripes(1))
			unlock := single.LockPair("a", "dollar", "b", "dollar")
			unlock()
			unlock = single.Lock("a", "dollar")
			unlock()
			So(true, ShouldBeTrue)
		})

		Convey("Opposite LockPair calls do not deadlock", func() {
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(2)
				go func() {
					defer wg.Done()
					l.LockPair("a", "dollar", "b", "dollar")()
				}()
				go func() {
					defer wg.Done()
					l.LockPair("b", "dollar", "a", "dollar")()
				}()
			}
			wg.Wait()
			So(true, ShouldBeTrue)
		})

		Convey("WithStripes ignores non-positive values", func() {
			So(len(New(WithStripes(0)).stripes), ShouldEqual, defaultStripes)
		})
	})
}
