package catalog

type Country struct {
	ID      int    `json:"id"`
	Name    string `json:"eng"`
	Visible int    `json:"visible"`
}

type Service struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type PriceInfo struct {
	Cost  float64 `json:"cost"`
	Count int     `json:"count"`
}
