package provider

import (
	"github.com/cobytes/scanOrchestratorGo/internal/models"
	"github.com/pkg/errors"
)

// ErrUnsupportedKind is returned for a scan kind without a tool mapping
var ErrUnsupportedKind = errors.New("no provider tool for scan kind")

// ToolID is the provider's numeric tool identifier
type ToolID int

// Provider tool identifiers
const (
	ToolSubdomainFinder ToolID = 20
	ToolWhois           ToolID = 30
	ToolDNSLookup       ToolID = 40
	ToolDNSZoneTransfer ToolID = 45
	ToolEmailFinder     ToolID = 50
	ToolPing            ToolID = 60
	ToolPortScan        ToolID = 70
	ToolTraceroute      ToolID = 80
	ToolWebsiteRecon    ToolID = 90
	ToolHTTPHeaders     ToolID = 95
	ToolSSLScan         ToolID = 110
	ToolWebsiteScan     ToolID = 170
	ToolWAFDetection    ToolID = 260
	ToolWordPress       ToolID = 270
	ToolDrupal          ToolID = 280
	ToolJoomla          ToolID = 290
	ToolSharePoint      ToolID = 300
	ToolURLFuzzer       ToolID = 450
	ToolNetworkScan     ToolID = 510
	ToolAPIScan         ToolID = 600
)

// Tool maps a scan kind onto a provider tool and its parameter type
type Tool struct {
	ID        ToolID
	Name      string
	newParams func() ToolParams
}

// Registry resolves scan kinds to provider tools
type Registry struct {
	tools map[models.ScanKind]Tool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[models.ScanKind]Tool)}
}

// DefaultRegistry returns a registry covering every known scan kind
func DefaultRegistry() *Registry {
	r := NewRegistry()
	basic := func() ToolParams { return &BasicParams{} }
	cms := func() ToolParams { return &CMSScanParams{} }

	r.Register(models.ScanKindSubdomainFinder, ToolSubdomainFinder, "Subdomain Finder", func() ToolParams { return &SubdomainParams{} })
	r.Register(models.ScanKindPortScan, ToolPortScan, "Port Scanner", func() ToolParams { return &PortScanParams{} })
	r.Register(models.ScanKindWebsiteScan, ToolWebsiteScan, "Website Vulnerability Scanner", func() ToolParams { return &WebsiteScanParams{} })
	r.Register(models.ScanKindNetworkScan, ToolNetworkScan, "Network Vulnerability Scanner", func() ToolParams { return &NetworkScanParams{} })
	r.Register(models.ScanKindAPIScan, ToolAPIScan, "API Scanner", func() ToolParams { return &APIScanParams{} })
	r.Register(models.ScanKindSSLScan, ToolSSLScan, "SSL/TLS Scanner", func() ToolParams { return &SSLScanParams{} })
	r.Register(models.ScanKindWAFDetection, ToolWAFDetection, "WAF Detector", basic)
	r.Register(models.ScanKindWordPress, ToolWordPress, "WordPress Scanner", cms)
	r.Register(models.ScanKindDrupal, ToolDrupal, "Drupal Scanner", cms)
	r.Register(models.ScanKindJoomla, ToolJoomla, "Joomla Scanner", cms)
	r.Register(models.ScanKindSharePoint, ToolSharePoint, "SharePoint Scanner", cms)
	r.Register(models.ScanKindDNSLookup, ToolDNSLookup, "DNS Lookup", basic)
	r.Register(models.ScanKindDNSZoneTransfer, ToolDNSZoneTransfer, "DNS Zone Transfer", basic)
	r.Register(models.ScanKindWhois, ToolWhois, "Whois Lookup", basic)
	r.Register(models.ScanKindEmailFinder, ToolEmailFinder, "Email Finder", basic)
	r.Register(models.ScanKindPing, ToolPing, "ICMP Ping", basic)
	r.Register(models.ScanKindTraceroute, ToolTraceroute, "Traceroute", basic)
	r.Register(models.ScanKindHTTPHeaders, ToolHTTPHeaders, "HTTP Headers", basic)
	r.Register(models.ScanKindWebsiteRecon, ToolWebsiteRecon, "Website Recon", basic)
	r.Register(models.ScanKindURLFuzzer, ToolURLFuzzer, "URL Fuzzer", func() ToolParams { return &URLFuzzerParams{} })
	return r
}

// Register maps kind to a tool, replacing any previous mapping
func (r *Registry) Register(kind models.ScanKind, id ToolID, name string, newParams func() ToolParams) {
	r.tools[kind] = Tool{ID: id, Name: name, newParams: newParams}
}

// Lookup returns the tool mapped to kind
func (r *Registry) Lookup(kind models.ScanKind) (Tool, bool) {
	tool, ok := r.tools[kind]
	return tool, ok
}

// Resolve returns the tool for kind together with its decoded, validated parameters
func (r *Registry) Resolve(kind models.ScanKind, bag models.JSONMap) (Tool, ToolParams, error) {
	tool, ok := r.tools[kind]
	if !ok {
		return Tool{}, nil, errors.Wrapf(ErrUnsupportedKind, "%s", kind)
	}
	params := tool.newParams()
	if err := decodeParams(bag, params); err != nil {
		return Tool{}, nil, errors.WithMessagef(err, "%s", kind)
	}
	return tool, params, nil
}

// Kinds describes the supported kinds in their canonical order
func (r *Registry) Kinds() []models.ScanKindInfo {
	out := make([]models.ScanKindInfo, 0, len(r.tools))
	for _, kind := range models.AllScanKinds() {
		if tool, ok := r.tools[kind]; ok {
			out = append(out, models.ScanKindInfo{Kind: kind, ToolID: int(tool.ID), ToolName: tool.Name})
		}
	}
	return out
}
