package tangram

import (
	"github.com/grailbio/tangram/matepair"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the counters of one run. Each run has its own registry.
type Stats struct {
	registry *prometheus.Registry

	RecordsRead      prometheus.Counter
	RecordsWritten   prometheus.Counter
	RecordsVerified  prometheus.Counter
	InsertionHits    prometheus.Counter
	PreloadedRecords prometheus.Counter
	Pairs            prometheus.Counter
	Singletons       prometheus.Counter
	Unpaired         prometheus.Counter
	Rotations        prometheus.Counter
	Reclassified     prometheus.Counter
	PreloadMatched   prometheus.Counter
	PreloadDropped   prometheus.Counter
}

func newStats() *Stats {
	s := &Stats{registry: prometheus.NewRegistry()}
	counter := func(name, help string) prometheus.Counter {
		c := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tangram",
			Name:      name,
			Help:      help,
		})
		s.registry.MustRegister(c)
		return c
	}
	s.RecordsRead = counter("records_read_total", "Records read in the main pass.")
	s.RecordsWritten = counter("records_written_total", "Records written.")
	s.RecordsVerified = counter("records_verified_total", "Records searched for in the special reference.")
	s.InsertionHits = counter("insertion_hits_total", "Records that matched the special reference.")
	s.PreloadedRecords = counter("preloaded_records_total", "Records on other chromosomes whose mate is on the target.")
	s.Pairs = counter("pairs_total", "Pairs written with both mates.")
	s.Singletons = counter("singletons_total", "Paired records written without their mate.")
	s.Unpaired = counter("unpaired_total", "Records without a mate.")
	s.Rotations = counter("buffer_rotations_total", "Mate buffer generation rotations.")
	s.Reclassified = counter("clip_reclassified_pairs_total", "Pairs whose mapped flags were changed by the soft clip heuristic.")
	s.PreloadMatched = counter("preload_matched_total", "Target records written with the annotation of a preloaded mate.")
	s.PreloadDropped = counter("preload_dropped_total", "Preloaded records whose mate was not found on the target.")
	return s
}

func (s *Stats) addBufferStats(bs matepair.Stats) {
	s.Pairs.Add(float64(bs.Pairs))
	s.Singletons.Add(float64(bs.Singletons))
	s.Unpaired.Add(float64(bs.Unpaired))
	s.Rotations.Add(float64(bs.Rotations))
	s.Reclassified.Add(float64(bs.Reclassified))
	s.PreloadMatched.Add(float64(bs.PreloadMatched))
	s.PreloadDropped.Add(float64(bs.PreloadDropped))
}

// Registry returns the registry that holds the counters.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

// WriteFile writes the counters to a local file in the prometheus text
// format.
func (s *Stats) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, s.registry)
}
