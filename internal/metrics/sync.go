package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder receives attachment and row activity from the sync and cleanup services.
type Recorder interface {
	FileUploaded()
	FileFailed()
	RowsUpserted(table string, n int)
	BatchFailed(table string)
	LinkRepaired(kind string)
}

// Sync exposes sync and cleanup counters.
type Sync struct {
	filesUploaded prometheus.Counter
	filesFailed   prometheus.Counter
	rowsUpserted  *prometheus.CounterVec
	batchesFailed *prometheus.CounterVec
	linksRepaired *prometheus.CounterVec
}

// NewSync registers the counters with reg.
func NewSync(reg prometheus.Registerer) (*Sync, error) {
	s := &Sync{
		filesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_files_uploaded_total",
			Help: "Local files uploaded to the remote bucket.",
		}),
		filesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_files_failed_total",
			Help: "Local files whose upload failed.",
		}),
		rowsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_rows_upserted_total",
			Help: "Rows written to the remote row store.",
		}, []string{"table"}),
		batchesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_batches_failed_total",
			Help: "Upsert calls rejected by the remote row store.",
		}, []string{"table"}),
		linksRepaired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attachment_links_repaired_total",
			Help: "Transaction attachment references linked, cleared or moved.",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{s.filesUploaded, s.filesFailed, s.rowsUpserted, s.batchesFailed, s.linksRepaired} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sync) FileUploaded() { s.filesUploaded.Inc() }

func (s *Sync) FileFailed() { s.filesFailed.Inc() }

func (s *Sync) RowsUpserted(table string, n int) {
	s.rowsUpserted.WithLabelValues(table).Add(float64(n))
}

func (s *Sync) BatchFailed(table string) {
	s.batchesFailed.WithLabelValues(table).Inc()
}

func (s *Sync) LinkRepaired(kind string) {
	s.linksRepaired.WithLabelValues(kind).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) FileUploaded()            {}
func (Nop) FileFailed()              {}
func (Nop) RowsUpserted(string, int) {}
func (Nop) BatchFailed(string)       {}
func (Nop) LinkRepaired(string)      {}
