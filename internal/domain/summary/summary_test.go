package summary_test

import (
	"errors"
	"math"
	"testing"

	"github.com/okian/volbreak/internal/domain/sampler"
	"github.com/okian/volbreak/internal/domain/summary"
	. "github.com/smartystreets/goconvey/convey"
)

func mustSamples(chains int, tau []int, sigma1, sigma2 []float64) *sampler.Samples {
	s, err := sampler.FromDraws(chains, tau, sigma1, sigma2)
	if err != nil {
		panic(err)
	}
	return s
}

func TestSummarize(t *testing.T) {
	Convey("Given draws with a tied tau mode", t, func() {
		s := mustSamples(1,
			[]int{7, 5, 5, 3, 3},
			[]float64{0.01, 0.01, 0.01, 0.01, 0.01},
			[]float64{0.02, 0.02, 0.02, 0.02, 0.02},
		)

		Convey("When summarizing", func() {
			sum, err := summary.Summarize(s)

			Convey("Then the tie should go to the lowest index", func() {
				So(err, ShouldBeNil)
				So(sum.ChangepointIndex, ShouldEqual, 3)
				So(sum.ChangepointProbability, ShouldAlmostEqual, 0.4, 1e-12)
				So(sum.ChangepointMean, ShouldAlmostEqual, 4.6, 1e-12)
			})

			Convey("And the volatility change should be relative to sigma_1", func() {
				So(sum.SigmaBefore.Mean, ShouldAlmostEqual, 0.01, 1e-12)
				So(sum.SigmaAfter.Mean, ShouldAlmostEqual, 0.02, 1e-12)
				So(sum.VolatilityChangePct, ShouldAlmostEqual, 100, 1e-9)
				So(sum.Samples, ShouldEqual, 5)
			})

			Convey("And a single chain should carry no diagnostics", func() {
				So(sum.Diagnostics, ShouldBeNil)
			})
		})
	})

	Convey("Given draws spread over a range", t, func() {
		sigma1 := make([]float64, 101)
		sigma2 := make([]float64, 101)
		tau := make([]int, 101)
		for i := range sigma1 {
			// Shuffled order must not matter.
			sigma1[(i*37)%101] = float64(i)
			sigma2[i] = 200 + float64(i)
			tau[i] = 10
		}
		s := mustSamples(1, tau, sigma1, sigma2)

		Convey("When summarizing", func() {
			sum, err := summary.Summarize(s)

			Convey("Then the interval should be the 2.5th and 97.5th percentiles", func() {
				So(err, ShouldBeNil)
				So(sum.SigmaBefore.Mean, ShouldAlmostEqual, 50, 1e-9)
				So(sum.SigmaBefore.Lower, ShouldAlmostEqual, 2.5, 1e-9)
				So(sum.SigmaBefore.Upper, ShouldAlmostEqual, 97.5, 1e-9)
				So(sum.SigmaAfter.Lower, ShouldAlmostEqual, 202.5, 1e-9)
				So(sum.SigmaBefore.StdDev, ShouldBeGreaterThan, 0)
			})

			Convey("And the input should be left untouched", func() {
				So(s.Sigma1[0], ShouldEqual, 0)
				So(s.Sigma1[37], ShouldEqual, 1)
			})
		})

		Convey("When summarizing twice", func() {
			a, errA := summary.Summarize(s)
			b, errB := summary.Summarize(s)

			Convey("Then both summaries should be identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a, ShouldResemble, b)
			})
		})
	})

	Convey("Given draws where every sigma_1 is exactly zero", t, func() {
		s := mustSamples(2, []int{1, 2, 3, 4}, []float64{0, 0, 0, 0}, []float64{0.1, 0.2, 0.3, 0.4})

		Convey("When summarizing", func() {
			_, err := summary.Summarize(s)

			Convey("Then it should fail with ErrDegenerateEstimate", func() {
				So(errors.Is(err, summary.ErrDegenerateEstimate), ShouldBeTrue)
			})
		})
	})

	Convey("Given no draws", t, func() {
		_, err := summary.Summarize(nil)

		Convey("Then it should fail with ErrDegenerateEstimate", func() {
			So(errors.Is(err, summary.ErrDegenerateEstimate), ShouldBeTrue)
		})
	})
}

func TestPercentile(t *testing.T) {
	Convey("Given sorted data", t, func() {
		data := []float64{1, 2, 3, 4, 5}

		Convey("Then percentiles should interpolate between order statistics", func() {
			So(summary.Percentile(data, 0), ShouldEqual, 1)
			So(summary.Percentile(data, 2.5), ShouldAlmostEqual, 1.1, 1e-12)
			So(summary.Percentile(data, 50), ShouldEqual, 3)
			So(summary.Percentile(data, 97.5), ShouldAlmostEqual, 4.9, 1e-12)
			So(summary.Percentile(data, 100), ShouldEqual, 5)
		})

		Convey("Then degenerate inputs should be handled", func() {
			So(summary.Percentile([]float64{7}, 97.5), ShouldEqual, 7)
			So(math.IsNaN(summary.Percentile(nil, 50)), ShouldBeTrue)
		})
	})
}

func TestRHat(t *testing.T) {
	Convey("Given two chains", t, func() {
		Convey("When they sample the same region", func() {
			x := []float64{1, 2, 3, 4, 2, 1, 4, 3}
			r := summary.RHat(x, 2)

			Convey("Then R-hat should not exceed one", func() {
				So(r, ShouldBeLessThanOrEqualTo, 1)
			})
		})

		Convey("When they are stuck in different regions", func() {
			x := []float64{1, 2, 1, 2, 101, 102, 101, 102}
			r := summary.RHat(x, 2)

			Convey("Then R-hat should flag the disagreement", func() {
				So(r, ShouldBeGreaterThan, 1.5)
			})
		})

		Convey("When a summary is built from them", func() {
			s := mustSamples(2,
				[]int{10, 11, 10, 11, 10, 11, 10, 12},
				[]float64{1, 2, 1, 2, 101, 102, 101, 102},
				[]float64{5, 6, 7, 8, 6, 5, 8, 7},
			)
			sum, err := summary.Summarize(s)

			Convey("Then diagnostics should be attached", func() {
				So(err, ShouldBeNil)
				So(sum.Diagnostics, ShouldNotBeNil)
				So(sum.Diagnostics.RHatSigma1, ShouldNotBeNil)
				So(*sum.Diagnostics.RHatSigma1, ShouldBeGreaterThan, 1.5)
				So(sum.Diagnostics.RHatTau, ShouldNotBeNil)
			})
		})

		Convey("When tau never moves but the scales do", func() {
			s := mustSamples(2,
				[]int{1, 1, 1, 1, 1, 1, 1, 1},
				[]float64{1, 2, 3, 4, 2, 1, 4, 3},
				[]float64{5, 6, 7, 8, 6, 5, 8, 7},
			)
			sum, err := summary.Summarize(s)

			Convey("Then only the tau statistic should be missing", func() {
				So(err, ShouldBeNil)
				So(sum.Diagnostics, ShouldNotBeNil)
				So(sum.Diagnostics.RHatTau, ShouldBeNil)
				So(sum.Diagnostics.RHatSigma1, ShouldNotBeNil)
				So(sum.Diagnostics.RHatSigma2, ShouldNotBeNil)
				So(*sum.Diagnostics.RHatSigma2, ShouldBeLessThanOrEqualTo, 1)
			})
		})
	})

	Convey("Given fewer than two chains", t, func() {
		So(math.IsNaN(summary.RHat([]float64{1, 2, 3}, 1)), ShouldBeTrue)
	})
}
