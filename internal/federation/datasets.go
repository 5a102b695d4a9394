package federation

// Row is one flat record from a backing source.
type Row map[string]any

// The simulated backing datasets. Real federation would replace these
// with live connectors behind the same dispatch interface; the row shapes
// are chosen so the demo queries exercise numeric and string predicates,
// ordering, and projection.
var datasets = map[string][]Row{
	"analytics": {
		{"user_id": "u-1001", "total_spend": 1250.0, "sessions": 42.0, "region": "eu-west"},
		{"user_id": "u-1002", "total_spend": 310.0, "sessions": 11.0, "region": "us-east"},
		{"user_id": "u-1003", "total_spend": 980.5, "sessions": 27.0, "region": "eu-west"},
		{"user_id": "u-1004", "total_spend": 4675.0, "sessions": 131.0, "region": "ap-south"},
		{"user_id": "u-1005", "total_spend": 88.0, "sessions": 4.0, "region": "us-east"},
		{"user_id": "u-1006", "total_spend": 760.25, "sessions": 19.0, "region": "us-west"},
		{"user_id": "u-1007", "total_spend": 2150.0, "sessions": 63.0, "region": "eu-north"},
		{"user_id": "u-1008", "total_spend": 445.0, "sessions": 15.0, "region": "ap-south"},
	},
	"sales": {
		{"order_id": "o-9001", "product": "Ion storage cell", "amount": 3500.0, "region": "eu-west"},
		{"order_id": "o-9002", "product": "Murmur telemetry sensor", "amount": 100.0, "region": "us-east"},
		{"order_id": "o-9003", "product": "Flux capacitor (refurbished)", "amount": 8200.0, "region": "us-west"},
		{"order_id": "o-9004", "product": "Ion storage cell", "amount": 3500.0, "region": "ap-south"},
		{"order_id": "o-9005", "product": "Murmur telemetry sensor", "amount": 100.0, "region": "eu-north"},
	},
	"inventory": {
		{"sku": "ion-cell", "product": "Ion storage cell", "stock": 12.0, "price": 3500.0},
		{"sku": "flux-capacitor", "product": "Flux capacitor (refurbished)", "stock": 3.0, "price": 8200.0},
		{"sku": "murmur-sensor", "product": "Murmur telemetry sensor", "stock": 40.0, "price": 100.0},
	},
	"telemetry": {
		{"device_id": "d-01", "metric": "temperature", "value": 21.4, "ts": "2026-08-24T09:00:00Z"},
		{"device_id": "d-01", "metric": "temperature", "value": 22.1, "ts": "2026-08-24T10:00:00Z"},
		{"device_id": "d-02", "metric": "humidity", "value": 58.0, "ts": "2026-08-24T09:00:00Z"},
		{"device_id": "d-03", "metric": "temperature", "value": 19.8, "ts": "2026-08-24T09:30:00Z"},
	},
}

// DatasetNames lists the simulated sources, for the planner dictionary.
func DatasetNames() []string {
	return []string{"analytics", "sales", "inventory", "telemetry"}
}
