package domain

// Analytics holds the per-campaign delivery and engagement counters with
// their derived rates. There is exactly one row per campaign, created
// zero-valued together with the campaign.
type Analytics struct {
	CampaignID   string  `json:"campaign_id" db:"campaign_id"`
	TotalSent    int     `json:"total_sent" db:"total_sent"`
	TotalOpened  int     `json:"total_opened" db:"total_opened"`
	TotalClicked int     `json:"total_clicked" db:"total_clicked"`
	TotalBounced int     `json:"total_bounced" db:"total_bounced"`
	OpenRate     float64 `json:"open_rate" db:"open_rate"`
	ClickRate    float64 `json:"click_rate" db:"click_rate"`
	BounceRate   float64 `json:"bounce_rate" db:"bounce_rate"`
}

// Recompute derives the three rates from the counters. With no sends every
// rate is 0; otherwise each rate is count/totalSent*100 clamped to [0,100].
func (a *Analytics) Recompute() {
	a.OpenRate = rate(a.TotalOpened, a.TotalSent)
	a.ClickRate = rate(a.TotalClicked, a.TotalSent)
	a.BounceRate = rate(a.TotalBounced, a.TotalSent)
}

func rate(count, sent int) float64 {
	if sent <= 0 {
		return 0
	}
	r := float64(count) / float64(sent) * 100
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return r
}
