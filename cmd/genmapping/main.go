// Command genmapping regenerates mapping.json: it matches the MoySklad
// product catalog against the Yandex campaign offers by article, code and
// externalCode. Run it out-of-band whenever the catalogs change; the server
// loads the result once at startup.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"sort"
	"time"

	"marketsync/internal/config"
	"marketsync/internal/moysklad"
	"marketsync/internal/yandex"
)

func main() {
	out := flag.String("out", "mapping.json", "output path for the SKU mapping")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("[CONFIG] %v", err)
	}
	if cfg.YandexToken == "" || cfg.YandexCampaignID == "" {
		log.Fatalf("[CONFIG] YANDEX_TOKEN and YANDEX_CAMPAIGN_ID are required to generate the mapping")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	wh := moysklad.New(cfg.MoySkladBase, cfg.MoySkladToken, cfg.OrgID, cfg.StoreID, cfg.AgentID)
	products, err := wh.ListProducts(ctx)
	if err != nil {
		log.Fatalf("[MAPPING] Failed to list MoySklad products: %v", err)
	}
	log.Printf("[MAPPING] MoySklad products: %d", len(products))

	market := yandex.New(cfg.YandexToken, cfg.YandexCampaignID)
	offers, err := market.ListOffers(ctx)
	if err != nil {
		log.Fatalf("[MAPPING] Failed to list Yandex offers: %v", err)
	}
	log.Printf("[MAPPING] Yandex offers: %d", len(offers))

	// Products are matched on any of their three merchant-visible codes;
	// article wins over code wins over externalCode when they collide.
	index := map[string]string{}
	add := func(k, id string) {
		if k != "" {
			if _, taken := index[k]; !taken {
				index[k] = id
			}
		}
	}
	for _, p := range products {
		add(p.Article, p.ID)
	}
	for _, p := range products {
		add(p.Code, p.ID)
	}
	for _, p := range products {
		add(p.ExternalCode, p.ID)
	}

	mapping := map[string]string{}
	var unmatched []string
	for _, o := range offers {
		sku := o.OfferID
		if sku == "" {
			sku = o.ShopSKU
		}
		if sku == "" {
			continue
		}
		if id, ok := index[sku]; ok {
			mapping[sku] = id
			continue
		}
		unmatched = append(unmatched, sku)
	}
	sort.Strings(unmatched)
	for _, sku := range unmatched {
		log.Printf("[MAPPING] No MoySklad product for offer: sku=%q", sku)
	}
	log.Printf("[MAPPING] Matched %d of %d offers (%d unmatched)", len(mapping), len(offers), len(unmatched))

	data, err := json.MarshalIndent(mapping, "", "  ")
	if err != nil {
		log.Fatalf("[MAPPING] Encode failed: %v", err)
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0o644); err != nil {
		log.Fatalf("[MAPPING] Write %s failed: %v", *out, err)
	}
	log.Printf("[MAPPING] Wrote %s", *out)
}
