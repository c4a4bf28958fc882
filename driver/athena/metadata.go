// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package athena

import (
	"context"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/athena-adbc/go/adbc"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/bluele/gcache"
	"golang.org/x/sync/singleflight"
)

const (
	MetadataKeyAthenaTableType    = "ATHENA:table_type"
	MetadataKeyAthenaPartitionKey = "ATHENA:partition_key"

	schemaCacheSize = 128
)

// schemaCache holds table schemas per connection. Concurrent lookups of
// the same table share one GetTableMetadata call.
type schemaCache struct {
	// nil when caching is disabled
	cache gcache.Cache
	group singleflight.Group
}

func newSchemaCache(ttl time.Duration) *schemaCache {
	s := &schemaCache{}
	if ttl > 0 {
		s.cache = gcache.New(schemaCacheSize).LRU().Expiration(ttl).Build()
	}
	return s
}

func (s *schemaCache) get(key string, load func() (*arrow.Schema, error)) (*arrow.Schema, error) {
	if s.cache != nil {
		if v, err := s.cache.Get(key); err == nil {
			return v.(*arrow.Schema), nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		schema, err := load()
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(key, schema)
		}
		return schema, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*arrow.Schema), nil
}

func (s *schemaCache) purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// GetTableSchema describes a table or view from the data catalog. Nil
// catalog and dbSchema fall back to the connection's configuration.
// Partition keys follow the regular columns.
func (c *connectionImpl) GetTableSchema(ctx context.Context, catalog *string, dbSchema *string, tableName string) (*arrow.Schema, error) {
	if tableName == "" {
		return nil, c.ErrorHelper.Errorf(adbc.StatusInvalidArgument, "table name must not be empty")
	}
	cfg := c.configuration()
	catalogName, databaseName := cfg.CatalogName(), cfg.DatabaseName()
	if catalog != nil && *catalog != "" {
		catalogName = *catalog
	}
	if dbSchema != nil && *dbSchema != "" {
		databaseName = *dbSchema
	}

	key := strings.Join([]string{catalogName, databaseName, tableName}, "\x00")
	return c.schemas.get(key, func() (*arrow.Schema, error) {
		return c.fetchTableSchema(ctx, catalogName, databaseName, tableName)
	})
}

func (c *connectionImpl) fetchTableSchema(ctx context.Context, catalogName, databaseName, tableName string) (*arrow.Schema, error) {
	if err := c.client.checkOpen(); err != nil {
		return nil, err
	}
	ctx, release := c.client.bind(ctx)
	defer release()

	out, err := c.client.api.GetTableMetadata(ctx, &athena.GetTableMetadataInput{
		CatalogName:  aws.String(catalogName),
		DatabaseName: aws.String(databaseName),
		TableName:    aws.String(tableName),
	})
	if err != nil {
		return nil, c.client.translate(ctx, err, "failed to get metadata of table %s.%s.%s", catalogName, databaseName, tableName)
	}
	md := out.TableMetadata
	if md == nil {
		return nil, c.client.protocolError("GetTableMetadata returned no metadata for table %s.%s.%s", catalogName, databaseName, tableName)
	}

	fields := make([]arrow.Field, 0, len(md.Columns)+len(md.PartitionKeys))
	fields = appendColumnFields(fields, md.Columns, false)
	fields = appendColumnFields(fields, md.PartitionKeys, true)

	var schemaMeta *arrow.Metadata
	if tableType := aws.ToString(md.TableType); tableType != "" {
		m := arrow.NewMetadata([]string{MetadataKeyAthenaTableType}, []string{tableType})
		schemaMeta = &m
	}
	c.Logger.Debug("fetched table metadata", "catalog", catalogName, "database", databaseName, "table", tableName, "columns", len(fields))
	return arrow.NewSchema(fields, schemaMeta), nil
}

func appendColumnFields(fields []arrow.Field, columns []types.Column, partitionKey bool) []arrow.Field {
	for _, col := range columns {
		keys := []string{MetadataKeyAthenaType}
		values := []string{aws.ToString(col.Type)}
		if partitionKey {
			keys = append(keys, MetadataKeyAthenaPartitionKey)
			values = append(values, "true")
		}
		fields = append(fields, arrow.Field{
			Name:     aws.ToString(col.Name),
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: arrow.NewMetadata(keys, values),
		})
	}
	return fields
}
