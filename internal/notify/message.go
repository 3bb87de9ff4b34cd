package notify

import (
	"encoding/json"
	"fmt"
)

type CampaignMessageInput struct {
	Campana         string
	Total           int
	Exitosas        int
	SinAcuerdo      int
	SinContestar    int
	TasaExito       float64
	MontoRecuperado float64
}

// BuildCampaignMessage returns Slack Block Kit JSON for the campaign summary.
func BuildCampaignMessage(input CampaignMessageInput) ([]byte, error) {
	title := "*Campaña de cobranzas finalizada*"
	if input.Campana != "" {
		title = fmt.Sprintf("*Campaña de cobranzas finalizada: %s*", input.Campana)
	}

	blocks := []map[string]any{
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": title,
			},
		},
		{
			"type": "section",
			"fields": []map[string]any{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Llamadas*\n%d", input.Total)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Exitosas*\n%d", input.Exitosas)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Sin acuerdo*\n%d", input.SinAcuerdo)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Sin contestar*\n%d", input.SinContestar)},
			},
		},
		{
			"type": "section",
			"text": map[string]any{
				"type": "mrkdwn",
				"text": fmt.Sprintf("Tasa de éxito *%.1f%%*, compromisos por *$%.0f*",
					input.TasaExito*100, input.MontoRecuperado),
			},
		},
	}

	payload := map[string]any{
		"blocks": blocks,
	}

	return json.Marshal(payload)
}
