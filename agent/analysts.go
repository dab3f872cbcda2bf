package agent

import (
	"fmt"
	"regexp"
	"time"

	"github.com/sorrymaker9331/finsight/logging"
	"github.com/sorrymaker9331/finsight/model"
	"github.com/sorrymaker9331/finsight/observability"
	"github.com/sorrymaker9331/finsight/tool"
)

// Agent names double as state keys and workflow node names.
const (
	AgentStart           = "start"
	AgentNews            = "news"
	AgentMarket          = "market"
	AgentFinancialReport = "financial-report"
	AgentMacro           = "macro"
	AgentSummarizer      = "summarizer"
)

// AnalystNames lists the four analysis agents in their canonical order.
var AnalystNames = []string{AgentNews, AgentMarket, AgentFinancialReport, AgentMacro}

// NewsFindings is the structured output of the news analyst.
type NewsFindings struct {
	Summary    string   `json:"summary" jsonschema:"description=Concise narrative of recent news coverage"`
	Sentiment  string   `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	RiskSignal string   `json:"risk_signal,omitempty" jsonschema:"description=Material risk surfaced by the news flow"`
	Headlines  []string `json:"headlines,omitempty"`
	Confidence float64  `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	NeedsRetry bool     `json:"needs_retry,omitempty"`
}

// MarketFindings is the structured output of the market analyst.
type MarketFindings struct {
	Summary      string  `json:"summary"`
	Trend        string  `json:"trend" jsonschema:"enum=up,enum=down,enum=sideways"`
	LatestClose  float64 `json:"latest_close,omitempty"`
	VolumeNote   string  `json:"volume_note,omitempty"`
	SupportLevel float64 `json:"support_level,omitempty"`
	Confidence   float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	NeedsRetry   bool    `json:"needs_retry,omitempty"`
}

// FinancialReportFindings is the structured output of the statement analyst.
type FinancialReportFindings struct {
	Summary       string  `json:"summary"`
	Profitability string  `json:"profitability,omitempty" jsonschema:"description=Margins and return ratios"`
	Solvency      string  `json:"solvency,omitempty"`
	Growth        string  `json:"growth,omitempty"`
	DividendNote  string  `json:"dividend_note,omitempty"`
	Confidence    float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	NeedsRetry    bool    `json:"needs_retry,omitempty"`
}

// MacroFindings is the structured output of the macro analyst.
type MacroFindings struct {
	Summary       string  `json:"summary"`
	RateNote      string  `json:"rate_note,omitempty" jsonschema:"description=Benchmark and interbank rate context"`
	LiquidityNote string  `json:"liquidity_note,omitempty" jsonschema:"description=Money supply and reserve ratio context"`
	IndexContext  string  `json:"index_context,omitempty"`
	Confidence    float64 `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	NeedsRetry    bool    `json:"needs_retry,omitempty"`
}

// AnalystParams carries the shared wiring of every analyst node.
type AnalystParams struct {
	Model         model.Model
	Tools         tool.Client
	MaxIterations int
	ToolTimeout   time.Duration
	Retry         tool.RetryPolicy
	Logger        logging.Logger
	Metrics       *observability.Metrics
}

func (p AnalystParams) config(name, instructions string, output any) ReActConfig {
	return ReActConfig{
		Name:          name,
		Model:         p.Model,
		Tools:         p.Tools,
		Instructions:  instructions,
		OutputType:    output,
		MaxIterations: p.MaxIterations,
		ToolTimeout:   p.ToolTimeout,
		Retry:         p.Retry,
		Logger:        p.Logger,
		Metrics:       p.Metrics,
	}
}

const newsInstructions = `You are a financial news analyst. Review recent news
coverage for the stock in the task, judge overall sentiment and surface any
material risk signals. Ground every claim in tool data; if news data is
unavailable say so in the summary and lower your confidence. Do not analyze
financial statements or price action.`

const marketInstructions = `You are a market technician. Analyze recent price
and volume action for the stock in the task: trend direction, notable volume
behavior and support levels. Use the historical quote tools for data; do not
use news tools. Keep the summary factual and grounded in the retrieved series.`

const financialReportInstructions = `You are a fundamental analyst. Analyze the
company's financial statements: profitability (margins, ROE), solvency
(leverage, liquidity ratios), growth and dividend record. Use the statement and
ratio tools for data; do not use news tools. Base every figure on tool output.`

const macroInstructions = `You are a macro strategist. Establish the monetary
and market backdrop relevant to the stock in the task: benchmark rates,
interbank rates, money supply trends and broad index context. Use the macro
data tools; do not fetch company statements or news.`

// NewNewsAnalyst builds the news sentiment and risk node.
func NewNewsAnalyst(p AnalystParams) (*ReActNode, error) {
	return NewReActNode(p.config(AgentNews, newsInstructions, NewsFindings{}))
}

// NewMarketAnalyst builds the price and volume technicals node.
func NewMarketAnalyst(p AnalystParams) (*ReActNode, error) {
	return NewReActNode(p.config(AgentMarket, marketInstructions, MarketFindings{}))
}

// NewFinancialReportAnalyst builds the statement analysis node.
func NewFinancialReportAnalyst(p AnalystParams) (*ReActNode, error) {
	return NewReActNode(p.config(AgentFinancialReport, financialReportInstructions, FinancialReportFindings{}))
}

// NewMacroAnalyst builds the macro backdrop node.
func NewMacroAnalyst(p AnalystParams) (*ReActNode, error) {
	return NewReActNode(p.config(AgentMacro, macroInstructions, MacroFindings{}))
}

// NewAnalysts builds all four analysts with shared wiring.
func NewAnalysts(p AnalystParams) ([]*ReActNode, error) {
	builders := []func(AnalystParams) (*ReActNode, error){
		NewNewsAnalyst, NewMarketAnalyst, NewFinancialReportAnalyst, NewMacroAnalyst,
	}
	nodes := make([]*ReActNode, 0, len(builders))
	for _, build := range builders {
		n, err := build(p)
		if err != nil {
			return nil, fmt.Errorf("build analysts: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Metadata keys produced by query preprocessing.
const (
	MetaStockCode = "stock_code"
	MetaCompany   = "company"
)

var (
	// company name followed by a bracketed A-share code, e.g. "贵州茅台(600519)"
	// or "Ping An Bank (000001)".
	companyCodeRe = regexp.MustCompile(`([\p{Han}A-Za-z][\p{Han}A-Za-z0-9.&\- ]*?)\s*[（(](\d{5,6})[)）]`)
	// bracketed code followed by a company name, e.g. "(000001)平安银行".
	codeCompanyRe = regexp.MustCompile(`[（(](\d{5,6})[)）]\s*([\p{Han}A-Za-z][\p{Han}A-Za-z0-9.&\- ]*)`)
	bareCodeRe    = regexp.MustCompile(`\b(\d{6})\b`)
)

// ExtractStockInfo pulls a company name and exchange code out of a free-text
// query. Either return value may be empty.
func ExtractStockInfo(query string) (company, code string) {
	if m := companyCodeRe.FindStringSubmatch(query); m != nil {
		if name := trimConnectives(m[1]); name != "" {
			return name, m[2]
		}
		// Only a connective phrase precedes the code ("帮我看看(000001)平安银行");
		// the company name follows the brackets instead.
		if m2 := codeCompanyRe.FindStringSubmatch(query); m2 != nil {
			return trimConnectives(m2[2]), m2[1]
		}
		return "", m[2]
	}
	if m := codeCompanyRe.FindStringSubmatch(query); m != nil {
		return trimConnectives(m[2]), m[1]
	}
	if m := bareCodeRe.FindStringSubmatch(query); m != nil {
		return "", m[1]
	}
	return "", ""
}

// QueryMetadata runs query preprocessing and returns the initial state
// metadata. Keys with empty values are omitted.
func QueryMetadata(query string) map[string]string {
	company, code := ExtractStockInfo(query)
	meta := make(map[string]string, 2)
	if company != "" {
		meta[MetaCompany] = company
	}
	if code != "" {
		meta[MetaStockCode] = code
	}
	return meta
}

var connectiveRe = regexp.MustCompile(`^(请帮我分析一下|帮我分析一下|我想了解一下|帮我看看|分析一下|分析)\s*`)

func trimConnectives(s string) string {
	return connectiveRe.ReplaceAllString(s, "")
}
