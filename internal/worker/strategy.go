package worker

import (
	"fmt"

	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/parse"
	"github.com/usda-monitor/pollengine/internal/perr"
	"github.com/usda-monitor/pollengine/internal/registry"
)

// fetchedEndpoint is one endpoint's response for a single candidate report
// date: decoded JSON rows (for the JSON-backed strategies) and the raw body
// (for the PDF strategy, which never gets a row decode).
type fetchedEndpoint struct {
	rows []map[string]any
	body []byte
}

// strategy dispatches one report_id's fetch-presence check and field
// extraction. hasPublished runs cheaply against the already-fetched
// endpoints for one candidate date, before a full parse is attempted;
// extract does the real field projection once a candidate date with data is
// found.
type strategy interface {
	hasPublished(endpoints []fetchedEndpoint) bool
	extract(schema domain.ReportSchema, endpoints []fetchedEndpoint, reportDateStr string) (map[string]any, error)
}

// strategyFor returns the parser dispatch strategy for a report_id.
//
// Grounded in original_source's registry.py endpoint shapes: a single
// data_match/row_index/field_equals endpoint uses genericStrategy; the
// PK600/XB402 cutout reports' multi-endpoint "base + Change From Prior Day
// [+ Current Volume]" shape uses cutoutStrategy; HG201's two-day blended
// index uses cmeIndexStrategy; the PK600 morning PDF bulletin uses
// pdfStrategy.
func strategyFor(reportID string) strategy {
	switch reportID {
	case registry.ReportPK600AfternoonCutout:
		return cutoutStrategy{roles: []parse.EndpointRole{{Prefix: "change_"}}}
	case registry.ReportXB402AfternoonCutout:
		return cutoutStrategy{roles: []parse.EndpointRole{{Prefix: "change_"}, {Prefix: ""}}}
	case registry.ReportHG201CMEIndex:
		return cmeIndexStrategy{}
	case registry.ReportPK600MorningCutoutPDF:
		return pdfStrategy{}
	default:
		return genericStrategy{}
	}
}

type genericStrategy struct{}

func (genericStrategy) hasPublished(endpoints []fetchedEndpoint) bool {
	return anyNonEmpty(endpoints)
}

func (genericStrategy) extract(schema domain.ReportSchema, endpoints []fetchedEndpoint, reportDateStr string) (map[string]any, error) {
	if len(endpoints) == 0 {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no endpoints configured")}
	}
	return parse.Generic(schema, endpoints[0].rows, reportDateStr)
}

type cutoutStrategy struct {
	roles []parse.EndpointRole
}

func (cutoutStrategy) hasPublished(endpoints []fetchedEndpoint) bool {
	return anyNonEmpty(endpoints)
}

func (s cutoutStrategy) extract(schema domain.ReportSchema, endpoints []fetchedEndpoint, reportDateStr string) (map[string]any, error) {
	payloads := make([][]map[string]any, len(endpoints))
	for i, e := range endpoints {
		payloads[i] = e.rows
	}
	return parse.CutoutMerge(schema, payloads, s.roles, reportDateStr)
}

type cmeIndexStrategy struct{}

func (cmeIndexStrategy) hasPublished(endpoints []fetchedEndpoint) bool {
	return anyNonEmpty(endpoints)
}

func (cmeIndexStrategy) extract(schema domain.ReportSchema, endpoints []fetchedEndpoint, reportDateStr string) (map[string]any, error) {
	if len(endpoints) == 0 {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no endpoints configured")}
	}
	return parse.CMETwoDayIndex(schema, endpoints[0].rows, reportDateStr)
}

type pdfStrategy struct{}

func (pdfStrategy) hasPublished(endpoints []fetchedEndpoint) bool {
	if len(endpoints) == 0 || len(endpoints[0].body) == 0 {
		return false
	}
	return true
}

// extract relies on parse.PDFExtract's own found flag rather than
// hasPublished's byte-presence check: a bulletin can be fetched successfully
// (non-empty PDF) before today's row has actually posted.
func (pdfStrategy) extract(schema domain.ReportSchema, endpoints []fetchedEndpoint, reportDateStr string) (map[string]any, error) {
	if len(endpoints) == 0 {
		return nil, &perr.ParseError{ReportID: schema.ReportID, Err: fmt.Errorf("no endpoints configured")}
	}
	fields, found, err := parse.PDFExtract(schema, endpoints[0].body, reportDateStr)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errNotYetPublished
	}
	return fields, nil
}

func anyNonEmpty(endpoints []fetchedEndpoint) bool {
	for _, e := range endpoints {
		if len(e.rows) > 0 {
			return true
		}
	}
	return false
}
