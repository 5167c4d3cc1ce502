package ingest

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/qepting91/reddit-media-dl/internal/domain"
	"github.com/qepting91/reddit-media-dl/internal/request"
)

// Batch file columns, in order. Only subreddits is required.
const (
	colSubreddits = iota
	colTime
	colSort
	colTerms
	colCount
	colType
)

// LoadBatch reads one fetch request per CSV row:
//
//	subreddits,time,sort,terms,count,type
//	kpop+twice,year,top,sana momo,5,image
//
// Subreddits are separated by "+", terms by spaces. The first row is a header.
// Rows that do not form a valid request are skipped.
func LoadBatch(path string) ([]domain.FetchRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Wrap in BOM stripper
	r := csv.NewReader(stripBOM(f))
	r.FieldsPerRecord = -1

	var reqs []domain.FetchRequest
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		line++
		if line == 1 {
			continue // Skip header
		}

		// Validation (Fail-Soft)
		req, ok := parseRow(record)
		if !ok {
			continue
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

func parseRow(record []string) (domain.FetchRequest, bool) {
	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	subs := request.SplitList(strings.ReplaceAll(field(colSubreddits), "+", ","))
	for _, s := range subs {
		if !domain.ValidSubredditName(strings.ToLower(s)) {
			return domain.FetchRequest{}, false
		}
	}

	f := request.Flags{
		Subs:  strings.Join(subs, ","),
		Time:  field(colTime),
		Sort:  field(colSort),
		Terms: strings.Fields(field(colTerms)),
		Count: 1,
		Type:  field(colType),
	}
	if c := field(colCount); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil {
			return domain.FetchRequest{}, false
		}
		f.Count = n
	}
	req, err := request.FromFlags(f)
	if err != nil {
		return domain.FetchRequest{}, false
	}
	return req, true
}

// LoadTerms reads search terms from the first column of a CSV file with a header row.
func LoadTerms(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(stripBOM(f))
	r.FieldsPerRecord = -1
	var terms []string
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if line > 0 && len(rec) > 0 {
			if t := strings.TrimSpace(rec[0]); t != "" {
				terms = append(terms, t)
			}
		}
		line++
	}
	return terms, nil
}

// Matrix expands terms x time filters into one request per combination over the
// same subreddit set. An empty terms list yields one unfiltered request per time filter.
func Matrix(subs, terms []string, times []domain.TimeFilter, count int, mediaType domain.MediaType) ([]domain.FetchRequest, error) {
	if len(terms) == 0 {
		terms = []string{""}
	}
	if len(times) == 0 {
		times = []domain.TimeFilter{domain.TimeNone}
	}
	var reqs []domain.FetchRequest
	for _, term := range terms {
		for _, tf := range times {
			req := domain.FetchRequest{
				Subreddits: subs,
				TimeFilter: tf,
				Count:      count,
				MediaType:  mediaType,
			}
			if term != "" {
				req.SearchTerms = []string{term}
			}
			req = req.Normalize()
			if err := req.Validate(); err != nil {
				return nil, err
			}
			reqs = append(reqs, req)
		}
	}
	return reqs, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	rdr, _, err := br.ReadRune()
	if err != nil {
		return br
	}
	if rdr != '\uFEFF' {
		br.UnreadRune()
	}
	return br
}
