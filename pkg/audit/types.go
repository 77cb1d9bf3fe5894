package audit

import (
	"math"
	"strconv"
	"strings"

	"github.com/shouni/go-image-audit/pkg/engine"
)

// ImageSizeRecord は、計測できた画像一件です。URL はリダイレクト後の最終URLです。
type ImageSizeRecord struct {
	URL  string
	Size int64
}

// Summary は記録一覧から導出される集計です。
type Summary struct {
	Count      int
	TotalBytes int64
	// Unmeasured は、画像の content-type だが content-length が無い、または数値でないため
	// 合計から除外したレスポンスの件数です。
	Unmeasured int
}

// TotalSizeMB は、合計バイト数をメガバイト (10^6) 単位で小数第2位に丸めた値です。
func (s Summary) TotalSizeMB() float64 {
	return math.Round(float64(s.TotalBytes)/1_000_000*100) / 100
}

// OutcomeKind は、候補一件の監査結果の種類です。
type OutcomeKind int

const (
	OutcomeRecorded OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRecorded:
		return "recorded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SkipReason は、記録されなかったレスポンスの理由です。
type SkipReason string

const (
	SkipNoContentType SkipReason = "no content-type"
	SkipNotImage      SkipReason = "non-image content-type"
	SkipNoLength      SkipReason = "image without numeric content-length"
	SkipNoResponse    SkipReason = "navigation without response"
)

// Outcome は、候補一件に対する Recorded / Skipped / Failed のいずれかです。
type Outcome struct {
	Kind      OutcomeKind
	Candidate string
	Record    ImageSizeRecord // Kind == OutcomeRecorded
	Reason    SkipReason      // Kind == OutcomeSkipped
	Err       error           // Kind == OutcomeFailed
}

// Classify は、受信したレスポンスを Recorded か Skipped に分類します。
func Classify(candidate string, resp *engine.Response) Outcome {
	contentType := resp.ContentType()
	if contentType == "" {
		return Outcome{Kind: OutcomeSkipped, Candidate: candidate, Reason: SkipNoContentType}
	}
	if !strings.Contains(contentType, "image/") {
		return Outcome{Kind: OutcomeSkipped, Candidate: candidate, Reason: SkipNotImage}
	}

	raw, ok := resp.ContentLength()
	if !ok {
		return Outcome{Kind: OutcomeSkipped, Candidate: candidate, Reason: SkipNoLength}
	}
	size, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || size < 0 {
		return Outcome{Kind: OutcomeSkipped, Candidate: candidate, Reason: SkipNoLength}
	}

	finalURL := resp.URL
	if finalURL == "" {
		finalURL = candidate
	}
	return Outcome{
		Kind:      OutcomeRecorded,
		Candidate: candidate,
		Record:    ImageSizeRecord{URL: finalURL, Size: size},
	}
}

// Result は一回の監査の結果です。Outcomes は候補と同じ順序で並びます。
type Result struct {
	Outcomes []Outcome
}

// Records は、記録された ImageSizeRecord を候補の順序で返します。
func (r *Result) Records() []ImageSizeRecord {
	records := []ImageSizeRecord{}
	for _, o := range r.Outcomes {
		if o.Kind == OutcomeRecorded {
			records = append(records, o.Record)
		}
	}
	return records
}

// Count は、指定された種類の結果の件数を返します。
func (r *Result) Count(kind OutcomeKind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// Summary は記録から集計を導出します。
func (r *Result) Summary() Summary {
	var s Summary
	for _, o := range r.Outcomes {
		switch o.Kind {
		case OutcomeRecorded:
			s.Count++
			s.TotalBytes += o.Record.Size
		case OutcomeSkipped:
			if o.Reason == SkipNoLength {
				s.Unmeasured++
			}
		}
	}
	return s
}
