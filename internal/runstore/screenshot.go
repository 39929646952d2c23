package runstore

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"frago/internal/cdp"
	ferrors "frago/internal/errors"
)

var screenshotSeqPattern = regexp.MustCompile(`^(\d{3})_`)

const screenshotDescMaxLength = 40

// ScreenshotPipeline captures and numbers screenshots for one run, writing
// each atomically as "<seq:03d>_<slug>.png" under the run's screenshots/
// directory.
type ScreenshotPipeline struct {
	ScreenshotsDir string
}

// NewScreenshotPipeline returns a pipeline writing into runDir/screenshots.
func NewScreenshotPipeline(runDir string) *ScreenshotPipeline {
	return &ScreenshotPipeline{ScreenshotsDir: filepath.Join(runDir, "screenshots")}
}

// NextSequenceNumber scans existing screenshots and returns one past the
// highest sequence number found, so restarts don't clobber prior captures.
func (p *ScreenshotPipeline) NextSequenceNumber() (int, error) {
	if err := ensureDir(p.ScreenshotsDir); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(p.ScreenshotsDir)
	if err != nil {
		return 0, ferrors.E(ferrors.KindFileSystem, "runstore.NextSequenceNumber", err)
	}

	maxNum := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".png") {
			continue
		}
		m := screenshotSeqPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil && n > maxNum {
			maxNum = n
		}
	}
	return maxNum + 1, nil
}

// Capture takes a screenshot through session, numbers it, and writes it
// atomically. session is supplied by the caller rather than opened
// internally, so callers reuse one already-connected session across many
// captures instead of paying a fresh connect per screenshot.
func (p *ScreenshotPipeline) Capture(ctx context.Context, session *cdp.Session, description string) (Screenshot, error) {
	seq, err := p.NextSequenceNumber()
	if err != nil {
		return Screenshot{}, err
	}
	if seq > 999 {
		return Screenshot{}, ferrors.E(ferrors.KindFileSystem, "runstore.Capture", fmt.Errorf("screenshot sequence exhausted (max 999)"))
	}

	data, err := session.Screenshot().Capture(ctx, "png", false, 0)
	if err != nil {
		return Screenshot{}, err
	}
	raw, err := base64.StdEncoding.DecodeString(data.Base64)
	if err != nil {
		return Screenshot{}, ferrors.E(ferrors.KindFileSystem, "runstore.Capture", fmt.Errorf("decode screenshot payload: %w", err))
	}

	slug := slugifyDescription(description)
	filename := fmt.Sprintf("%03d_%s.png", seq, slug)
	finalPath := filepath.Join(p.ScreenshotsDir, filename)

	if err := writeFileAtomic(finalPath, raw); err != nil {
		return Screenshot{}, ferrors.E(ferrors.KindFileSystem, "runstore.Capture", fmt.Errorf("save screenshot %q: %w", finalPath, err))
	}

	return Screenshot{
		SequenceNumber: seq,
		Description:    description,
		FilePath:       filepath.Join("screenshots", filename),
		Timestamp:      time.Now(),
	}, nil
}

// slugifyDescription mirrors generateThemeSlug's ASCII-only slugging but
// caps at screenshotDescMaxLength instead of a run_id's 50.
func slugifyDescription(description string) string {
	var b strings.Builder
	lastWasHyphen := true
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasHyphen = false
		default:
			if !lastWasHyphen {
				b.WriteByte('-')
				lastWasHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > screenshotDescMaxLength {
		slug = strings.Trim(slug[:screenshotDescMaxLength], "-")
	}
	if slug == "" {
		slug = "screenshot"
	}
	return slug
}
