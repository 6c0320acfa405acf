package jobs

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	. "github.com/smartystreets/goconvey/convey"
)

type levels map[string]int

func (l levels) JobLevel(_ context.Context, job string) (int, error) {
	if v, ok := l[job]; ok {
		return v, nil
	}
	return 1, nil
}

type brokenLevels struct{}

func (brokenLevels) JobLevel(context.Context, string) (int, error) {
	return 0, errors.New("backend down")
}

func TestRegistry(t *testing.T) {
	Convey("Given job definitions", t, func() {
		miner := Job{
			Name:   "Miner",
			Salary: decimal.NewFromInt(25),
			Actions: []Action{
				{Action: "break", Target: "minecraft:coal_ore", Exp: 5, Money: decimal.RequireFromString("0.25")},
			},
		}
		smith := Job{Name: "blacksmith", Requirement: &Requirement{Job: "MINER"}}

		r, err := NewRegistry(miner, smith)
		So(err, ShouldBeNil)

		Convey("Names are lower-cased and unemployed is always present", func() {
			So(r.Names(), ShouldResemble, []string{"blacksmith", "miner", "unemployed"})
			u, ok := r.Lookup("UNEMPLOYED")
			So(ok, ShouldBeTrue)
			So(u.Salary.StringFixed(2), ShouldEqual, "20.00")
		})

		Convey("Requirements are normalized", func() {
			j, _ := r.Lookup("blacksmith")
			So(j.Requirement.Job, ShouldEqual, "miner")
			So(j.Requirement.Level, ShouldEqual, 1)
		})

		Convey("Rewards are found by action and target", func() {
			j, err := r.Resolve("miner")
			So(err, ShouldBeNil)
			a, ok := j.Reward("break", "minecraft:coal_ore")
			So(ok, ShouldBeTrue)
			So(a.Exp, ShouldEqual, 5)
			_, ok = j.Reward("place", "minecraft:coal_ore")
			So(ok, ShouldBeFalse)
		})

		Convey("Unknown jobs fail to resolve", func() {
			_, err := r.Resolve("wizard")
			So(errors.Is(err, ErrUnknownJob), ShouldBeTrue)
		})

		Convey("Invalid definitions are rejected", func() {
			_, err := NewRegistry(Job{Name: "bad name"})
			So(errors.Is(err, ErrInvalidJob), ShouldBeTrue)
			_, err = NewRegistry(Job{Name: "a"}, Job{Name: "A"})
			So(errors.Is(err, ErrDuplicateJob), ShouldBeTrue)
			_, err = NewRegistry(Job{Name: "a", Actions: []Action{{Action: "break"}}})
			So(errors.Is(err, ErrInvalidAction), ShouldBeTrue)
		})
	})
}

func TestCheckRequirement(t *testing.T) {
	Convey("Given a job gated by permission and level", t, func() {
		ctx := context.Background()
		job := Job{Name: "blacksmith", Requirement: &Requirement{Permission: "tally.job.blacksmith", Job: "miner", Level: 5}}

		Convey("A principal without the permission is rejected first", func() {
			err := CheckRequirement(ctx, job, NewPermissions("p1"), levels{"miner": 10})
			var np *NotPermittedError
			So(errors.As(err, &np), ShouldBeTrue)
			So(np.Permission, ShouldEqual, "tally.job.blacksmith")
			So(errors.Is(err, ErrNotPermitted), ShouldBeTrue)
		})

		Convey("A low level is rejected with the required level", func() {
			err := CheckRequirement(ctx, job, NewPermissions("p1", "tally.job.*"), levels{"miner": 4})
			var lr *LevelRequirementError
			So(errors.As(err, &lr), ShouldBeTrue)
			So(lr.RequiredLevel, ShouldEqual, 5)
			So(lr.Level, ShouldEqual, 4)
			So(errors.Is(err, ErrLevelRequirement), ShouldBeTrue)
		})

		Convey("Meeting both passes", func() {
			So(CheckRequirement(ctx, job, NewPermissions("p1", "tally.job.blacksmith"), levels{"miner": 5}), ShouldBeNil)
		})

		Convey("A job without requirement is open", func() {
			So(CheckRequirement(ctx, Job{Name: "miner"}, nil, nil), ShouldBeNil)
		})

		Convey("Level lookup failures are returned", func() {
			err := CheckRequirement(ctx, job, NewPermissions("p1", "*"), brokenLevels{})
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrLevelRequirement), ShouldBeFalse)
		})
	})
}

func TestCurve(t *testing.T) {
	Convey("Given the default curve", t, func() {
		c := NewCurve(0)

		Convey("Exp to level grows with the square of the level", func() {
			So(c.ExpToLevel(1), ShouldEqual, 100)
			So(c.ExpToLevel(3), ShouldEqual, 900)
		})

		Convey("Apply levels up on cumulative experience", func() {
			So(c.Apply(1, 99), ShouldEqual, 1)
			So(c.Apply(1, 100), ShouldEqual, 2)
			So(c.Apply(1, 950), ShouldEqual, 4)
			So(c.Apply(6, 0), ShouldEqual, 6)
		})

		Convey("Huge levels saturate instead of wrapping", func() {
			So(c.ExpToLevel(4_000_000_000), ShouldEqual, math.MaxInt)
			So(c.ExpToLevel(math.MaxInt), ShouldEqual, math.MaxInt)
			So(c.ExpToLevel(303_700_049), ShouldBeGreaterThan, 0)
		})

		Convey("Apply returns promptly for any experience", func() {
			done := make(chan int, 1)
			go func() { done <- c.Apply(1, math.MaxInt) }()
			select {
			case lvl := <-done:
				So(lvl, ShouldEqual, MaxLevel)
			case <-time.After(time.Second):
				So("Apply did not return", ShouldBeEmpty)
			}
			So(c.Apply(4_000_000_000, math.MaxInt), ShouldEqual, 4_000_000_000)
			So(c.Apply(1, MaxExp), ShouldEqual, 4635)
		})
	})

	Convey("Given experience near the bounds", t, func() {
		So(AddExp(MaxExp-1, 10), ShouldEqual, MaxExp)
		So(AddExp(5, math.MaxInt), ShouldEqual, MaxExp)
		So(AddExp(5, math.MinInt), ShouldEqual, 0)
		So(AddExp(math.MaxInt, 1), ShouldEqual, MaxExp)
		So(AddExp(10, -3), ShouldEqual, 7)
	})
}
