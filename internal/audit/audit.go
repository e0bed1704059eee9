// Package audit scans an input once and reports data quality problems in
// tag keys, street names and address/contact values.
package audit

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wegman-software/osmwrangle/internal/classify"
	"github.com/wegman-software/osmwrangle/internal/normalize"
	"github.com/wegman-software/osmwrangle/internal/rules"
	"github.com/wegman-software/osmwrangle/internal/source"
)

// maxStreetTypes bounds how many distinct unexpected street types are kept
const maxStreetTypes = 1000

var (
	countryRe  = regexp.MustCompile(`[Uu][Ss]`)
	postcodeRe = regexp.MustCompile(`\d{5}(-\d{4}$)?`)
	phoneRe    = regexp.MustCompile(`(\d-)?\d{3}-\d{3}-\d{4}|\(\d{3}\)\s\d{3}-\d{4}|\d{3}\.\d{3}\.\d{4}`)
)

// Value audit buckets
const (
	BucketState    = "state"
	BucketCountry  = "country"
	BucketPostcode = "postcode"
	BucketPhone    = "phone"
)

// Samples is a count plus a bounded set of distinct example values
type Samples struct {
	Count   int64    `yaml:"count"`
	Samples []string `yaml:"samples,omitempty"`
}

// ValueCheck counts matching and non-matching values of one kind
type ValueCheck struct {
	Match int64    `yaml:"match"`
	Other int64    `yaml:"other"`
	Bad   []string `yaml:"other_samples,omitempty"`
}

// Report is the audit result
type Report struct {
	Elements    map[string]int64            `yaml:"elements"`
	KeyClasses  map[classify.KeyClass]int64 `yaml:"key_classes"`
	StreetTypes map[string]*Samples         `yaml:"unexpected_street_types"`
	// StreetTypesDropped counts names whose type was not kept once the
	// distinct type limit was reached
	StreetTypesDropped int64                  `yaml:"street_types_dropped,omitempty"`
	Values             map[string]*ValueCheck `yaml:"values"`
}

// Write encodes the report as YAML
func (r *Report) Write(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("failed to encode audit report: %w", err)
	}
	return enc.Close()
}

// Auditor accumulates a report over a stream of elements
type Auditor struct {
	classifier *classify.Classifier
	expected   map[string]struct{}
	limit      int
	report     *Report
}

// New creates an auditor from rules
func New(r *rules.Rules) *Auditor {
	expected := make(map[string]struct{}, len(r.ExpectedStreetTypes))
	for _, t := range r.ExpectedStreetTypes {
		expected[t] = struct{}{}
	}
	return &Auditor{
		classifier: classify.New(r),
		expected:   expected,
		limit:      r.AuditSampleLimit,
		report: &Report{
			Elements:    make(map[string]int64),
			KeyClasses:  make(map[classify.KeyClass]int64),
			StreetTypes: make(map[string]*Samples),
			Values: map[string]*ValueCheck{
				BucketState:    {},
				BucketCountry:  {},
				BucketPostcode: {},
				BucketPhone:    {},
			},
		},
	}
}

// Run consumes scanner and returns the report
func (a *Auditor) Run(ctx context.Context, scanner source.Scanner) (*Report, error) {
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a.Add(scanner.Element())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if n := scanner.Relations(); n > 0 {
		a.report.Elements["relation"] += n
	}
	return a.report, nil
}

// Add audits one element
func (a *Auditor) Add(el *source.Element) {
	a.report.Elements[string(el.Type)]++
	for _, t := range el.Tags {
		a.report.KeyClasses[a.classifier.Audit(t.Key)]++
		if t.Key == "addr:street" {
			a.auditStreet(t.Value)
		}
		a.auditValue(t.Key, t.Value)
	}
}

// Report returns the report accumulated so far
func (a *Auditor) Report() *Report {
	return a.report
}

func (a *Auditor) auditStreet(name string) {
	typ, ok := normalize.StreetType(name)
	if !ok {
		return
	}
	if _, ok := a.expected[typ]; ok {
		return
	}

	s, ok := a.report.StreetTypes[typ]
	if !ok {
		if len(a.report.StreetTypes) >= maxStreetTypes {
			a.report.StreetTypesDropped++
			return
		}
		s = &Samples{}
		a.report.StreetTypes[typ] = s
	}
	s.Count++
	s.Samples = a.addSample(s.Samples, name)
}

// auditValue checks state, country, postcode and phone values. The first
// matching key pattern decides the bucket.
func (a *Auditor) auditValue(key, value string) {
	var (
		bucket string
		match  bool
	)
	switch {
	case key == "addr:state":
		bucket, match = BucketState, normalize.IsCalifornia(value)
	case strings.Contains(key, "country"):
		bucket, match = BucketCountry, countryRe.MatchString(value)
	case strings.Contains(key, "postcode"):
		bucket, match = BucketPostcode, postcodeRe.MatchString(value)
	case strings.Contains(key, "phone"):
		bucket, match = BucketPhone, phoneRe.MatchString(value)
	default:
		return
	}

	v := a.report.Values[bucket]
	if match {
		v.Match++
		return
	}
	v.Other++
	v.Bad = a.addSample(v.Bad, value)
}

func (a *Auditor) addSample(samples []string, value string) []string {
	if len(samples) >= a.limit || slices.Contains(samples, value) {
		return samples
	}
	return append(samples, value)
}
