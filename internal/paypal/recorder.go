package paypal

import "time"

// Recorder receives verification metrics. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	CertificateFetched(result string)
	CertificateCacheHit()
	CertificateCacheMiss()
	CertificateEvicted()
	CertificateCacheSize(entries int)
	VerificationCompleted(result string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CertificateFetched(string)                    {}
func (nopRecorder) CertificateCacheHit()                         {}
func (nopRecorder) CertificateCacheMiss()                        {}
func (nopRecorder) CertificateEvicted()                          {}
func (nopRecorder) CertificateCacheSize(int)                     {}
func (nopRecorder) VerificationCompleted(string, time.Duration) {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
