package downloader

import (
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
)

const progressInterval = 30 * time.Second

// progressReader logs how far a long download has come.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	lastLog    time.Time
	logger     *slog.Logger
	url        string
}

func newProgressReader(r io.Reader, total int64, logger *slog.Logger, url string) *progressReader {
	return &progressReader{
		reader:  r,
		total:   total,
		lastLog: time.Now(),
		logger:  logger,
		url:     url,
	}
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 {
		p.downloaded += int64(n)
		if time.Since(p.lastLog) > progressInterval {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}
	return n, err
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded", humanize.Bytes(uint64(p.downloaded)),
			"total", humanize.Bytes(uint64(p.total)),
			"percent", p.downloaded*100/p.total,
		)
		return
	}
	p.logger.Info("download progress",
		"url", p.url,
		"downloaded", humanize.Bytes(uint64(p.downloaded)),
	)
}
