package models

import (
	"log"

	"bitbucket.org/mmdatafocus/stockdocs_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Business{},
		&Shop{}, &Currency{}, &ExchangeRate{},
		&Product{}, &ShopStock{},
		&StockDocument{}, &StockDocumentItem{}, &DocumentNumberSeries{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
