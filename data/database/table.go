package database

import "go.mongodb.org/mongo-driver/mongo"

// Table binds a document type to its collection.
type Table interface {
	GetTableName() string
	Collection(db *mongo.Database) *mongo.Collection
}
