package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// ExtractRecords reads one StatRecord per well-formed row of a stats body.
// Malformed rows are skipped and counted. Records keep first-seen order and
// later duplicates of the same (title, per90, percentile) are dropped.
func ExtractRecords(body *goquery.Selection) ([]models.StatRecord, int) {
	if body == nil {
		return nil, 0
	}

	var records []models.StatRecord
	seen := make(map[models.StatKey]struct{})
	skipped := 0

	body.Find("tr").Each(func(_ int, row *goquery.Selection) {
		rec, err := rowRecord(row)
		if err != nil {
			skipped++
			return
		}
		key := rec.Key()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	})
	return records, skipped
}

func rowRecord(row *goquery.Selection) (models.StatRecord, error) {
	header := row.ChildrenFiltered("th").First()
	cells := row.ChildrenFiltered("td")
	if header.Length() == 0 || cells.Length() < 2 {
		return models.StatRecord{}, utils.ErrMalformedRow
	}

	rec := models.StatRecord{
		Title: strings.TrimSpace(header.Text()),
		Per90: strings.TrimSpace(cells.Eq(0).Text()),
	}
	if div := cells.Eq(1).Find("div").First(); div.Length() > 0 {
		pct := strings.TrimSpace(div.Text())
		rec.Percentile = &pct
	}
	return rec, nil
}
