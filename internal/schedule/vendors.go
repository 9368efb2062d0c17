package schedule

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Vendor is one channel entry of the schedule page's vendor strip.
type Vendor struct {
	CompanyID string
	Name      string
	LogoURL   string
	Href      string
}

// DisplayName falls back to the company id when the strip has no label.
func (v Vendor) DisplayName() string {
	if v.Name != "" {
		return v.Name
	}
	return v.CompanyID
}

// ExtractVendors reads the vendor strip of the top-level schedule page.
func ExtractVendors(html string) ([]Vendor, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse vendor list: %w", err)
	}

	vendors := make([]Vendor, 0)
	doc.Find("div.list--broadcast_vendors a.link").Each(func(_ int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		if !strings.Contains(href, "companyId=") {
			return
		}

		companyID := companyIDFrom(href)
		if companyID == "" {
			return
		}

		name, _ := link.Attr("data-selected-channel-text")
		if name == "" {
			name = strings.TrimSpace(link.Find(".text").First().Text())
		}

		logo, _ := link.Attr("data-selected-channel-image")
		if logo == "" {
			logo, _ = link.Find("img").First().Attr("src")
		}

		vendors = append(vendors, Vendor{
			CompanyID: companyID,
			Name:      name,
			LogoURL:   logo,
			Href:      href,
		})
	})
	return vendors, nil
}

func companyIDFrom(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return parsed.Query().Get("companyId")
}
