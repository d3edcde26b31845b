package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ShopModel is a small order-management model shared by CLI and harness
// tests. It has inheritance, a measure, an enumeration, a composition, a
// required association with a partner, derived members and a mapped
// transfer object.
const ShopModel = `package shop

model: "shop"

measure: Mass: unit: {
	gram: {symbol: "g"}
	kilogram: {symbol: "kg", dividend: 1000}
}

enum: Status: ["OPEN", "SHIPPED", "CLOSED"]

type: Party: {
	abstract: true
	attribute: name: {type: "String", required: true, maxLength: 40}
}

type: Customer: {
	extends: ["Party"]
	relation: {
		orders: {target: "Order", upper: "*", partner: "customer"}
		ordersWithMultipleItems: {target: "Order", upper: "*", getter: "self.orders!filter(o | o.items!count() > 1)"}
	}
}

type: Order: {
	attribute: {
		status: {type: "Status", default: "Status#OPEN"}
		weight: {unit: "kg"}
		itemCount: {type: "Integer", getter: "self.items!count()"}
		note: "String"
	}
	relation: {
		customer: {target: "Customer", lower: 1, partner: "orders"}
		items: {target: "OrderDetail", kind: "composition", upper: "*", createable: true}
		shipment: {target: "Shipment", createable: true}
	}
}

type: OrderDetail: attribute: quantity: "Integer"

type: Shipment: attribute: carrier: "String"

type: Tester: attribute: number: {type: "Integer", default: "Tester!count()"}

type: OrderInfo: {
	kind: "transfer"
	mapsTo: "Order"
	attribute: {
		state: {type: "Status", binding: "status"}
		lines: {type: "Integer", getter: "self.items!count()"}
	}
}

type: Dashboard: {
	kind: "transfer"
	attribute: orderCount: {type: "Integer", getter: "Order!count()"}
}
`

// WriteModel writes files into a fresh temporary directory and returns
// it. With no files it writes ShopModel.
func WriteModel(t testing.TB, files map[string]string) string {
	t.Helper()
	if files == nil {
		files = map[string]string{"shop.cue": ShopModel}
	}
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("write model: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write model: %v", err)
		}
	}
	return dir
}
