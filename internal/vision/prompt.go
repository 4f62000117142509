package vision

import (
	"fmt"

	"github.com/vitrine-shop/vitrine/internal/catalog"
)

func itemPrompt(t catalog.ItemType) string {
	kind := "coin"
	if t == catalog.ItemTypeStamp {
		kind = "stamp"
	}
	return fmt.Sprintf(`You are an expert numismatist and philatelist.
The two images show the front and the back of a %s.

1. Identify the item: country, year, denomination and name.
2. Grade its condition (for example Mint, Fine, Poor) from visible wear, oxidation or tears.
3. List anomalies, mint errors, scratches or unique features that affect value.
4. Estimate a realistic market value range in USD.
5. Write a short professional description in Hebrew.

Write itemName, origin, conditionGrade and anomalies in Hebrew.`, kind)
}

const logoPrompt = `Analyze this logo. Pick the dominant colors that would work as the
primary brand color for a website header or button. Return exactly 3
distinct hex color codes such as #FF5733.`

var analysisSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"itemName":       map[string]any{"type": "STRING", "description": "Full name of the item in Hebrew"},
		"year":           map[string]any{"type": "STRING", "description": "Year of issue"},
		"origin":         map[string]any{"type": "STRING", "description": "Country of origin in Hebrew"},
		"conditionGrade": map[string]any{"type": "STRING", "description": "Condition grade in Hebrew"},
		"anomalies": map[string]any{
			"type":        "ARRAY",
			"items":       map[string]any{"type": "STRING"},
			"description": "Anomalies or defects in Hebrew",
		},
		"estimatedValueRange": map[string]any{"type": "STRING", "description": "Value range, e.g. $10 - $20"},
		"description":         map[string]any{"type": "STRING", "description": "Professional description in Hebrew"},
		"confidenceScore":     map[string]any{"type": "NUMBER", "description": "Confidence in the identification, 0-100"},
	},
	"required": []string{"itemName", "year", "origin", "conditionGrade", "estimatedValueRange", "description"},
}

var colorsSchema = map[string]any{
	"type": "OBJECT",
	"properties": map[string]any{
		"colors": map[string]any{
			"type":        "ARRAY",
			"items":       map[string]any{"type": "STRING"},
			"description": "Hex color codes",
		},
	},
}
