package sampler_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/okian/volbreak/internal/domain/changepoint"
	"github.com/okian/volbreak/internal/domain/sampler"
	"github.com/okian/volbreak/internal/domain/series"
	"github.com/okian/volbreak/pkg/logger"
	"github.com/okian/volbreak/pkg/metrics"
	. "github.com/smartystreets/goconvey/convey"
)

// discard is a Logger that drops every record. The global logger is never
// initialised in this package, so samplers here must use the one they are given.
type discard struct{}

func (discard) Info(context.Context, string, ...logger.Field)  {}
func (discard) Error(context.Context, string, ...logger.Field) {}
func (discard) Debug(context.Context, string, ...logger.Field) {}
func (discard) Warn(context.Context, string, ...logger.Field)  {}
func (d discard) Named(string) logger.Logger                   { return d }
func (d discard) With(...logger.Field) logger.Logger           { return d }

func newSampler(opts ...sampler.Option) *sampler.Sampler {
	return sampler.New(append([]sampler.Option{sampler.WithLogger(discard{})}, opts...)...)
}

// synthetic returns n zero-mean Gaussian draws whose scale switches from
// before to after at index breakAt.
func synthetic(seed uint64, n, breakAt int, before, after float64) []float64 {
	r := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, n)
	for i := range out {
		scale := before
		if i >= breakAt {
			scale = after
		}
		out[i] = r.NormFloat64() * scale
	}
	return out
}

func buildModel(values []float64) *changepoint.Model {
	s, err := series.New(values)
	if err != nil {
		panic(err)
	}
	m, err := changepoint.Build(s)
	if err != nil {
		panic(err)
	}
	return m
}

func TestSampler_Validate(t *testing.T) {
	Convey("Given sampler options", t, func() {
		cases := []struct {
			name string
			opt  sampler.Option
		}{
			{"zero draws", sampler.WithDraws(0)},
			{"negative tune", sampler.WithTune(-1)},
			{"zero chains", sampler.WithChains(0)},
			{"target acceptance of one", sampler.WithTargetAcceptance(1)},
		}

		for _, tc := range cases {
			Convey("When configured with "+tc.name, func() {
				smp := newSampler(tc.opt)

				Convey("Then validation should fail with ErrInvalidConfig", func() {
					So(errors.Is(smp.Validate(), sampler.ErrInvalidConfig), ShouldBeTrue)
					_, err := smp.Sample(context.Background(), buildModel([]float64{0.1, 0.2}))
					So(errors.Is(err, sampler.ErrInvalidConfig), ShouldBeTrue)
				})
			})
		}

		Convey("When configured with defaults and zero tuning", func() {
			So(newSampler().Validate(), ShouldBeNil)
			So(newSampler(sampler.WithTune(0)).Validate(), ShouldBeNil)
		})
	})
}

func TestSampler_OwnLogger(t *testing.T) {
	Convey("Given a caller-supplied logger and no global logger", t, func() {
		m := buildModel(synthetic(5, 40, 20, 0.01, 0.03))

		Convey("Then building and sampling should not touch the global logger", func() {
			var (
				samples *sampler.Samples
				err     error
			)
			So(func() {
				samples, err = sampler.New(
					sampler.WithLogger(discard{}),
					sampler.WithDraws(20),
					sampler.WithTune(20),
					sampler.WithChains(2),
					sampler.WithSeed(2),
				).Sample(context.Background(), m)
			}, ShouldNotPanic)
			So(err, ShouldBeNil)
			So(samples.Len(), ShouldEqual, 40)
		})
	})
}

func TestSampler_Sample(t *testing.T) {
	Convey("Given a series of 60 returns", t, func() {
		m := buildModel(synthetic(7, 60, 30, 0.01, 0.03))
		smp := newSampler(
			sampler.WithDraws(150),
			sampler.WithTune(100),
			sampler.WithChains(3),
			sampler.WithSeed(11),
		)

		Convey("When sampling", func() {
			samples, err := smp.Sample(context.Background(), m)

			Convey("Then it should return chains*draws joint draws", func() {
				So(err, ShouldBeNil)
				So(samples.Len(), ShouldEqual, 450)
				So(samples.Chains, ShouldEqual, 3)
				So(samples.Draws, ShouldEqual, 150)
				So(len(samples.Sigma1), ShouldEqual, 450)
				So(len(samples.Sigma2), ShouldEqual, 450)
				So(len(samples.Stats), ShouldEqual, 3)
			})

			Convey("And every draw should lie inside the support", func() {
				So(err, ShouldBeNil)
				for i := 0; i < samples.Len(); i++ {
					d := samples.Draw(i)
					So(d.Tau, ShouldBeBetweenOrEqual, 1, 59)
					So(d.Sigma1, ShouldBeGreaterThan, 0)
					So(d.Sigma2, ShouldBeGreaterThan, 0)
				}
			})

			Convey("And acceptance rates should be recorded per chain", func() {
				So(err, ShouldBeNil)
				for _, st := range samples.Stats {
					So(st.Sigma1Accept, ShouldBeBetweenOrEqual, 0, 1)
					So(st.Sigma2Step, ShouldBeGreaterThan, 0)
				}
			})

			Convey("And acceptance should be exported under each scale's name", func() {
				So(err, ShouldBeNil)
				families, gatherErr := metrics.GetRegistry().Gather()
				So(gatherErr, ShouldBeNil)

				params := map[string]bool{}
				for _, f := range families {
					if f.GetName() != "volbreak_inference_acceptance_rate" {
						continue
					}
					for _, metric := range f.GetMetric() {
						for _, l := range metric.GetLabel() {
							if l.GetName() == "parameter" {
								params[l.GetValue()] = true
							}
						}
					}
				}
				So(params[changepoint.NameSigma1], ShouldBeTrue)
				So(params[changepoint.NameSigma2], ShouldBeTrue)
			})
		})

		Convey("When sampling twice with the same seed", func() {
			a, errA := smp.Sample(context.Background(), m)
			b, errB := smp.Sample(context.Background(), m)

			Convey("Then the draws should be identical", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.Tau, ShouldResemble, b.Tau)
				So(a.Sigma1, ShouldResemble, b.Sigma1)
				So(a.Sigma2, ShouldResemble, b.Sigma2)
			})
		})

		Convey("When sampling with different seeds", func() {
			a, errA := smp.Sample(context.Background(), m)
			b, errB := newSampler(
				sampler.WithDraws(150),
				sampler.WithTune(100),
				sampler.WithChains(3),
				sampler.WithSeed(12),
			).Sample(context.Background(), m)

			Convey("Then the draws should differ", func() {
				So(errA, ShouldBeNil)
				So(errB, ShouldBeNil)
				So(a.Sigma1, ShouldNotResemble, b.Sigma1)
			})
		})
	})

	Convey("Given a strong volatility break at day 100", t, func() {
		m := buildModel(synthetic(42, 200, 100, 0.01, 0.05))

		Convey("When sampling", func() {
			samples, err := newSampler(
				sampler.WithDraws(500),
				sampler.WithTune(500),
				sampler.WithChains(2),
				sampler.WithSeed(1),
			).Sample(context.Background(), m)

			Convey("Then the posterior should concentrate around the break", func() {
				So(err, ShouldBeNil)
				var tauSum, s1Sum, s2Sum float64
				for i := 0; i < samples.Len(); i++ {
					tauSum += float64(samples.Tau[i])
					s1Sum += samples.Sigma1[i]
					s2Sum += samples.Sigma2[i]
				}
				n := float64(samples.Len())
				So(tauSum/n, ShouldAlmostEqual, 100, 5)
				So(s2Sum/n, ShouldBeGreaterThan, s1Sum/n)
			})
		})
	})

	Convey("Given a series of length two", t, func() {
		m := buildModel([]float64{0.02, -0.05})

		Convey("When sampling", func() {
			samples, err := newSampler(
				sampler.WithDraws(100),
				sampler.WithTune(50),
				sampler.WithChains(2),
				sampler.WithSeed(3),
			).Sample(context.Background(), m)

			Convey("Then tau should always be 1", func() {
				So(err, ShouldBeNil)
				So(samples.Len(), ShouldEqual, 200)
				for _, tau := range samples.Tau {
					So(tau, ShouldEqual, 1)
				}
			})
		})
	})
}

func TestSampler_Failures(t *testing.T) {
	Convey("Given returns whose squares overflow", t, func() {
		m := buildModel([]float64{1e200, -1e200, 1e200})

		Convey("When sampling", func() {
			samples, err := newSampler(sampler.WithDraws(10), sampler.WithTune(10), sampler.WithSeed(1)).
				Sample(context.Background(), m)

			Convey("Then initialization should fail with a SamplingError", func() {
				So(samples, ShouldBeNil)
				So(errors.Is(err, sampler.ErrSampling), ShouldBeTrue)
				var se *sampler.SamplingError
				So(errors.As(err, &se), ShouldBeTrue)
				So(se.Iteration, ShouldEqual, 0)
			})
		})
	})

	Convey("Given a series of exact zeros", t, func() {
		m := buildModel(make([]float64, 50))

		Convey("When sampling", func() {
			samples, err := newSampler(
				sampler.WithDraws(1000),
				sampler.WithTune(3000),
				sampler.WithChains(2),
				sampler.WithSeed(5),
			).Sample(context.Background(), m)

			Convey("Then the collapsing scale should be reported as divergence", func() {
				So(samples, ShouldBeNil)
				So(errors.Is(err, sampler.ErrSampling), ShouldBeTrue)
				So(errors.Is(err, sampler.ErrSamplingTimeout), ShouldBeFalse)
			})
		})
	})

	Convey("Given an iteration budget smaller than tune+draws", t, func() {
		m := buildModel(synthetic(9, 40, 20, 0.01, 0.02))

		Convey("When sampling", func() {
			samples, err := newSampler(
				sampler.WithDraws(50),
				sampler.WithTune(50),
				sampler.WithIterationBudget(60),
				sampler.WithSeed(2),
			).Sample(context.Background(), m)

			Convey("Then it should fail with ErrSamplingTimeout", func() {
				So(samples, ShouldBeNil)
				So(errors.Is(err, sampler.ErrSamplingTimeout), ShouldBeTrue)
			})
		})
	})

	Convey("Given a wall-clock timeout far shorter than the run", t, func() {
		m := buildModel(synthetic(10, 2000, 1000, 0.01, 0.02))

		Convey("When sampling", func() {
			samples, err := newSampler(
				sampler.WithDraws(1_000_000),
				sampler.WithTune(1_000_000),
				sampler.WithTimeout(20*time.Millisecond),
			).Sample(context.Background(), m)

			Convey("Then partial chains should be discarded", func() {
				So(samples, ShouldBeNil)
				So(errors.Is(err, sampler.ErrSamplingTimeout), ShouldBeTrue)
				So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
			})
		})
	})

	Convey("Given a canceled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Convey("When sampling", func() {
			_, err := newSampler(sampler.WithDraws(10), sampler.WithTune(0)).
				Sample(ctx, buildModel([]float64{0.1, 0.2, 0.3}))

			Convey("Then it should fail with ErrSamplingTimeout", func() {
				So(errors.Is(err, sampler.ErrSamplingTimeout), ShouldBeTrue)
			})
		})
	})
}

func TestFromDraws(t *testing.T) {
	Convey("Given caller-supplied draws", t, func() {
		Convey("When lengths agree and split evenly", func() {
			s, err := sampler.FromDraws(2, []int{1, 2, 3, 4}, []float64{1, 1, 1, 1}, []float64{2, 2, 2, 2})

			Convey("Then chains should be addressable", func() {
				So(err, ShouldBeNil)
				So(s.Draws, ShouldEqual, 2)
				tau, _, sigma2 := s.Chain(1)
				So(tau, ShouldResemble, []int{3, 4})
				So(sigma2, ShouldResemble, []float64{2, 2})
			})
		})

		Convey("When lengths disagree", func() {
			_, err := sampler.FromDraws(1, []int{1, 2}, []float64{1}, []float64{1, 2})
			So(errors.Is(err, sampler.ErrInvalidSamples), ShouldBeTrue)
		})

		Convey("When draws cannot be split across chains", func() {
			_, err := sampler.FromDraws(2, []int{1, 2, 3}, []float64{1, 1, 1}, []float64{1, 1, 1})
			So(errors.Is(err, sampler.ErrInvalidSamples), ShouldBeTrue)
		})

		Convey("When there are no draws", func() {
			_, err := sampler.FromDraws(1, nil, nil, nil)
			So(errors.Is(err, sampler.ErrInvalidSamples), ShouldBeTrue)
		})
	})
}
