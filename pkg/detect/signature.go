package detect

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/census-engine/pkg/models"
)

// Confidence assigned per deciding signal.
const (
	confidenceNameAndMedia = 0.95
	confidenceMagicHinted  = 0.95
	confidenceMagic        = 0.9
	confidenceTextHinted   = 0.85
	confidenceName         = 0.8
	confidenceMedia        = 0.75
	confidenceDelimited    = 0.7
	confidenceConflict     = 0.6
	confidencePlainText    = 0.6
)

var extensionKinds = map[string]models.SourceKind{
	".xlsx": models.SourceKindSpreadsheet,
	".xlsm": models.SourceKindSpreadsheet,
	".xls":  models.SourceKindSpreadsheet,
	".ods":  models.SourceKindSpreadsheet,
	".csv":  models.SourceKindDelimited,
	".tsv":  models.SourceKindDelimited,
	".pdf":  models.SourceKindDocument,
	".png":  models.SourceKindImage,
	".jpg":  models.SourceKindImage,
	".jpeg": models.SourceKindImage,
	".tif":  models.SourceKindImage,
	".tiff": models.SourceKindImage,
	".gif":  models.SourceKindImage,
	".bmp":  models.SourceKindImage,
	".txt":  models.SourceKindPlainText,
	".prn":  models.SourceKindPlainText,
}

type signature struct {
	magic []byte
	kind  models.SourceKind
}

var signatures = []signature{
	{[]byte("PK\x03\x04"), models.SourceKindSpreadsheet},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, models.SourceKindSpreadsheet},
	{[]byte("%PDF"), models.SourceKindDocument},
	{[]byte("\x89PNG\r\n\x1a\n"), models.SourceKindImage},
	{[]byte{0xFF, 0xD8, 0xFF}, models.SourceKindImage},
	{[]byte("GIF87a"), models.SourceKindImage},
	{[]byte("GIF89a"), models.SourceKindImage},
	{[]byte("II*\x00"), models.SourceKindImage},
	{[]byte("MM\x00*"), models.SourceKindImage},
}

// Delimiters considered when sniffing delimited text, in tie-break order.
var delimiters = []string{",", ";", "\t", "|"}

// Detector classifies files into source kinds. It never fails; anything it
// cannot place is reported as unknown and left for extraction to reject.
type Detector struct {
	logger *zap.Logger
}

// NewDetector creates a format signature detector.
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{logger: logger.Named("format-detector")}
}

// Detect classifies a file from its name, declared media type and leading bytes.
func (d *Detector) Detect(id models.FileIdentity, head []byte) models.FormatDetection {
	result := d.detect(id, head)
	if result.Kind == models.SourceKindDelimited && result.Delimiter == "" {
		result.Delimiter = SniffDelimiter(head)
	}
	d.logger.Debug("Format detected",
		zap.String("file_name", id.Name),
		zap.String("kind", string(result.Kind)),
		zap.Float64("confidence", result.Confidence),
		zap.String("signal", result.Signal))
	return result
}

func (d *Detector) detect(id models.FileIdentity, head []byte) models.FormatDetection {
	byName := kindFromName(id.Name)
	byMedia := kindFromMedia(id.MediaType)

	if byName != "" && byName == byMedia {
		return detection(byName, confidenceNameAndMedia, models.DetectionSignalNameAndMedia)
	}

	// Magic bytes outrank a lone or conflicting hint.
	if byMagic := kindFromMagic(head); byMagic != "" {
		conf := confidenceMagic
		if byMagic == byName || byMagic == byMedia {
			conf = confidenceMagicHinted
		}
		return detection(byMagic, conf, models.DetectionSignalMagicBytes)
	}

	switch {
	case byName != "" && byMedia != "":
		return detection(byName, confidenceConflict, models.DetectionSignalName)
	case byName != "":
		// Text content that agrees with a textual extension raises confidence.
		if byName == models.SourceKindDelimited || byName == models.SourceKindPlainText {
			if t := d.detectText(head); t.Kind == byName {
				t.Confidence = confidenceTextHinted
				return t
			}
		}
		return detection(byName, confidenceName, models.DetectionSignalName)
	case byMedia != "":
		return detection(byMedia, confidenceMedia, models.DetectionSignalMedia)
	}

	return d.detectText(head)
}

// detectText decides between delimited and plain text from a decoded byte
// window: consistent delimiter density per line marks delimited text.
func (d *Detector) detectText(head []byte) models.FormatDetection {
	if len(head) == 0 || !IsMostlyPrintable(head) {
		return detection(models.SourceKindUnknown, 0, models.DetectionSignalNone)
	}
	if delim := SniffDelimiter(head); delim != "" {
		det := detection(models.SourceKindDelimited, confidenceDelimited, models.DetectionSignalTextDensity)
		det.Delimiter = delim
		return det
	}
	return detection(models.SourceKindPlainText, confidencePlainText, models.DetectionSignalTextDensity)
}

func detection(kind models.SourceKind, conf float64, signal string) models.FormatDetection {
	return models.FormatDetection{Kind: kind, Confidence: conf, Signal: signal}
}

func kindFromName(name string) models.SourceKind {
	return extensionKinds[strings.ToLower(filepath.Ext(name))]
}

func kindFromMedia(mediaType string) models.SourceKind {
	if mediaType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return ""
	}
	switch strings.ToLower(mt) {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"application/vnd.ms-excel.sheet.macroenabled.12",
		"application/vnd.oasis.opendocument.spreadsheet":
		return models.SourceKindSpreadsheet
	case "text/csv", "application/csv", "text/tab-separated-values":
		return models.SourceKindDelimited
	case "application/pdf":
		return models.SourceKindDocument
	case "image/png", "image/jpeg", "image/tiff", "image/gif", "image/bmp":
		return models.SourceKindImage
	case "text/plain":
		return models.SourceKindPlainText
	}
	return ""
}

func kindFromMagic(head []byte) models.SourceKind {
	for _, s := range signatures {
		if bytes.HasPrefix(head, s.magic) {
			return s.kind
		}
	}
	return ""
}

// IsMostlyPrintable reports whether at least 90% of the decoded runes are
// printable or whitespace. Invalid UTF-8 bytes are read as Latin-1.
func IsMostlyPrintable(head []byte) bool {
	head = bytes.TrimPrefix(head, []byte("\xEF\xBB\xBF"))
	if len(head) == 0 {
		return false
	}
	total, printable := 0, 0
	for len(head) > 0 {
		r, size := utf8.DecodeRune(head)
		if r == utf8.RuneError && size == 1 {
			r = rune(head[0])
		}
		head = head[size:]
		total++
		if r == 0 {
			continue
		}
		if unicode.IsPrint(r) || unicode.IsSpace(r) || r >= 0xA0 {
			printable++
		}
	}
	return float64(printable)/float64(total) >= 0.9
}

// SniffDelimiter returns the delimiter that appears the same non-zero number
// of times on most of the first lines, or "" when none does.
func SniffDelimiter(head []byte) string {
	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	// The last line of a window is usually cut short.
	if len(lines) > 2 {
		lines = lines[:len(lines)-1]
	}
	var sample []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			sample = append(sample, l)
		}
		if len(sample) == 20 {
			break
		}
	}
	if len(sample) == 0 {
		return ""
	}

	best, bestScore := "", 0.0
	for _, delim := range delimiters {
		counts := make(map[int]int)
		for _, l := range sample {
			counts[strings.Count(l, delim)]++
		}
		mode, modeLines := 0, 0
		for n, c := range counts {
			if n > 0 && (c > modeLines || (c == modeLines && n > mode)) {
				mode, modeLines = n, c
			}
		}
		if mode == 0 {
			continue
		}
		consistency := float64(modeLines) / float64(len(sample))
		if consistency < 0.6 {
			continue
		}
		if score := consistency * float64(min(mode, 10)); score > bestScore {
			best, bestScore = delim, score
		}
	}
	return best
}
