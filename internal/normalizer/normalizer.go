// Package normalizer maps provider scan output onto the uniform Finding model.
package normalizer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNormalization is returned when output does not have the shape expected for its scan kind
var ErrNormalization = errors.New("unexpected scan output shape")

// family groups scan kinds that share an output shape
type family int

const (
	familyGeneric family = iota
	familySubdomain
	familyPort
	familyVulnerability
	familySSL
)

var kindFamilies = map[models.ScanKind]family{
	models.ScanKindSubdomainFinder: familySubdomain,
	models.ScanKindPortScan:        familyPort,
	models.ScanKindWebsiteScan:     familyVulnerability,
	models.ScanKindNetworkScan:     familyVulnerability,
	models.ScanKindAPIScan:         familyVulnerability,
	models.ScanKindWordPress:       familyVulnerability,
	models.ScanKindDrupal:          familyVulnerability,
	models.ScanKindJoomla:          familyVulnerability,
	models.ScanKindSharePoint:      familyVulnerability,
	models.ScanKindSSLScan:         familySSL,
}

// Normalizer turns raw provider output into findings.
// It holds no state besides its logger and is safe for concurrent use.
type Normalizer struct {
	log *logrus.Logger
}

// New creates a Normalizer
func New(log *logrus.Logger) *Normalizer {
	if log == nil {
		log = logrus.New()
	}
	return &Normalizer{log: log}
}

// Normalize maps the raw output of a scan of the given kind to findings.
// Missing output yields no findings and no error.
func (n *Normalizer) Normalize(kind models.ScanKind, data json.RawMessage) ([]models.Finding, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		n.log.WithField("kind", kind).Warn("Scan output has no data, no findings produced")
		return []models.Finding{}, nil
	}

	var (
		findings []models.Finding
		err      error
	)
	switch kindFamilies[kind] {
	case familySubdomain:
		findings, err = normalizeSubdomains(trimmed)
	case familyPort:
		findings, err = normalizePorts(trimmed)
	case familyVulnerability:
		findings, err = normalizeVulnerabilities(trimmed)
	case familySSL:
		findings, err = normalizeSSL(trimmed)
	default:
		findings, err = normalizeGeneric(kind, trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNormalization, kind, err)
	}

	n.log.WithFields(logrus.Fields{
		"kind":     kind,
		"findings": len(findings),
	}).Debug("Scan output normalized")
	return findings, nil
}

func normalizeGeneric(kind models.ScanKind, data json.RawMessage) ([]models.Finding, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return []models.Finding{{
		Type:     string(kind),
		Title:    "Scan completed",
		Severity: models.SeverityInfo,
		Details:  models.JSONMap{"raw": raw},
	}}, nil
}
