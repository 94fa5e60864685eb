// ABOUTME: Property-sheet (myosoku) image analysis for ledger form filling
// ABOUTME: Asks Gemini for JSON and parses the reply into ledger fields
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/harperreed/dealboard/models"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

// MaxImageBytes caps uploads accepted for analysis.
const MaxImageBytes = 10 << 20

var ErrNotConfigured = errors.New("gemini api key not configured")

// AllowedMIMETypes lists the upload types the analyzer accepts.
var AllowedMIMETypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Analyzer extracts ledger fields from a property sheet image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*models.LedgerFields, error)
}

const prompt = `このマイソク（不動産情報シート）の画像から以下の情報を抽出してください。抽出できない項目は空文字または0を返してください。JSONのみで返答してください。

- tenantName: 入居者名（借主名）
- tenantAddress: 入居者住所（借主住所）
- contractDate: 契約日（YYYY-MM-DD形式）
- rentPrice: 賃料（数値のみ、単位は円）
- managementFee: 管理費・共益費（数値のみ、単位は円）
- deposit: 敷金（数値のみ、単位は円）
- keyMoney: 礼金（数値のみ、単位は円）
- brokerage: 仲介手数料（数値のみ、単位は円）
- adFee: AD費用（数値のみ、単位は円）
- landlordName: 貸主名
- landlordAddress: 貸主住所
- realEstateAgent: 仲介業者名`

type GeminiAnalyzer struct {
	client *genai.Client
	model  string
}

func NewGeminiAnalyzer(ctx context.Context, apiKey, model string) (*GeminiAnalyzer, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiAnalyzer{client: client, model: model}, nil
}

func (g *GeminiAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string) (*models.LedgerFields, error) {
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}
	if !AllowedMIMETypes[mimeType] {
		return nil, fmt.Errorf("unsupported image type %q", mimeType)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(image, mimeType),
		}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.1),
		MaxOutputTokens:  1500,
	})
	if err != nil {
		return nil, fmt.Errorf("image analysis failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("image analysis returned an empty response")
	}
	return ParseExtraction(text)
}

type extraction struct {
	TenantName      string          `json:"tenantName"`
	TenantAddress   string          `json:"tenantAddress"`
	ContractDate    string          `json:"contractDate"`
	RentPrice       json.RawMessage `json:"rentPrice"`
	ManagementFee   json.RawMessage `json:"managementFee"`
	Deposit         json.RawMessage `json:"deposit"`
	KeyMoney        json.RawMessage `json:"keyMoney"`
	Brokerage       json.RawMessage `json:"brokerage"`
	AdFee           json.RawMessage `json:"adFee"`
	LandlordName    string          `json:"landlordName"`
	LandlordAddress string          `json:"landlordAddress"`
	RealEstateAgent string          `json:"realEstateAgent"`
}

// ParseExtraction reads the first JSON object in text. Amounts may be numbers
// or strings such as "80,000円"; unreadable amounts and dates become zero.
func ParseExtraction(text string) (*models.LedgerFields, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, errors.New("no JSON object in analysis response")
	}

	var raw extraction
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode analysis response: %w", err)
	}

	fields := &models.LedgerFields{
		TenantName:      strings.TrimSpace(raw.TenantName),
		TenantAddress:   strings.TrimSpace(raw.TenantAddress),
		RentPrice:       amount(raw.RentPrice),
		ManagementFee:   amount(raw.ManagementFee),
		Deposit:         amount(raw.Deposit),
		KeyMoney:        amount(raw.KeyMoney),
		Brokerage:       amount(raw.Brokerage),
		AdFee:           amount(raw.AdFee),
		LandlordName:    strings.TrimSpace(raw.LandlordName),
		LandlordAddress: strings.TrimSpace(raw.LandlordAddress),
		RealEstateAgent: strings.TrimSpace(raw.RealEstateAgent),
	}
	if d, err := models.ParseDate(strings.TrimSpace(raw.ContractDate)); err == nil {
		fields.ContractDate = d
	}
	return fields, nil
}

func amount(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int64(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			return r
		}
		return -1
	}, s)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
