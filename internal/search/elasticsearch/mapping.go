package elasticsearch

// DefaultIndexName is the default Elasticsearch index used for product documents.
const DefaultIndexName = "products"

// buildIndexMapping returns the JSON mapping for the products index. Facet
// fields are keywords; text fields use the French analyzer except resume_en.
// price_<CUR> fields are mapped as doubles through a dynamic template.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "folded_french": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding", "french_elision", "french_stop", "french_stemmer"]
        }
      },
      "filter": {
        "french_elision": {
          "type": "elision",
          "articles_case": true,
          "articles": ["l", "m", "t", "qu", "n", "s", "j", "d", "c"]
        },
        "french_stop": {
          "type": "stop",
          "stopwords": "_french_"
        },
        "french_stemmer": {
          "type": "stemmer",
          "language": "light_french"
        }
      }
    }
  },
  "mappings": {
    "dynamic_templates": [
      {
        "prices_flat": {
          "match": "price_*",
          "mapping": { "type": "double" }
        }
      }
    ],
    "properties": {
      "objectID":         { "type": "keyword" },
      "slug":             { "type": "keyword" },
      "title":            { "type": "text", "analyzer": "folded_french", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "description":      { "type": "text", "analyzer": "folded_french" },
      "brand":            { "type": "keyword" },
      "category":         { "type": "keyword" },
      "tags":             { "type": "keyword" },
      "images":           { "type": "keyword", "index": false },
      "zones_dispo":      { "type": "keyword" },
      "prices":           { "type": "object", "dynamic": true },
      "affiliate_url":    { "type": "keyword", "index": false },
      "eco_score":        { "type": "float" },
      "eco_score_bucket": { "type": "keyword" },
      "ai_confidence":    { "type": "float" },
      "confidence_pct":   { "type": "integer" },
      "confidence_color": { "type": "keyword" },
      "verified_status":  { "type": "keyword" },
      "resume_fr":        { "type": "text", "analyzer": "folded_french" },
      "resume_en":        { "type": "text", "analyzer": "english" },
      "enriched_at":      { "type": "date" },
      "created_at":       { "type": "date" },
      "updated_at":       { "type": "date" },
      "synced_at":        { "type": "date" }
    }
  }
}`
}

// FacetFields lists the keyword fields storefronts facet on.
var FacetFields = []string{
	"tags",
	"confidence_color",
	"eco_score_bucket",
	"brand",
	"category",
	"zones_dispo",
	"verified_status",
}
