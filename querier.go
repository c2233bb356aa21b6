package reviewloader

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"golang.org/x/xerrors"
	"google.golang.org/api/iterator"

	"go.nownabe.dev/reviewloader/config"
	"go.nownabe.dev/reviewloader/dataset"
)

// keyParam is the named parameter the key is bound to.
const keyParam = "key"

// querier runs parameterized queries against the warehouse.
type querier interface {
	query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*dataset.Dataset, error)
}

type defaultQuerier struct {
	bq *bigquery.Client
}

func (q *defaultQuerier) query(ctx context.Context, sql string, params []bigquery.QueryParameter) (*dataset.Dataset, error) {
	query := q.bq.Query(sql)
	query.Parameters = params

	it, err := query.Read(ctx)
	if err != nil {
		return nil, xerrors.Errorf("failed to run query: %w", err)
	}

	rows := [][]string{}
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, xerrors.Errorf("failed to read query result: %w", err)
		}
		rows = append(rows, valuesToStrings(it.Schema, row))
	}

	header := make([]string, len(it.Schema))
	for i, f := range it.Schema {
		header[i] = f.Name
	}

	return dataset.New(header, rows)
}

// valuesToStrings renders a result row the way BigQuery exports it: NUMERIC
// and BIGNUMERIC as decimals at their column's scale, BYTES as base64.
func valuesToStrings(schema bigquery.Schema, row []bigquery.Value) []string {
	out := make([]string, len(row))
	for i, v := range row {
		switch v := v.(type) {
		case nil:
			out[i] = ""
		case string:
			out[i] = v
		case float64:
			out[i] = strconv.FormatFloat(v, 'f', -1, 64)
		case time.Time:
			out[i] = v.UTC().Format(time.RFC3339Nano)
		case *big.Rat:
			if i < len(schema) && schema[i].Type == bigquery.BigNumericFieldType {
				out[i] = bigquery.BigNumericString(v)
			} else {
				out[i] = bigquery.NumericString(v)
			}
		case []byte:
			out[i] = base64.StdEncoding.EncodeToString(v)
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// keyQuery builds the query reading every configured column for one key.
// Identifiers come from validated configuration; the key is only ever bound
// as @key.
func keyQuery(q config.QueryConfig, key string) (string, []bigquery.QueryParameter) {
	cols := make([]string, len(q.Columns))
	for i, c := range q.Columns {
		cols[i] = "`" + c + "`"
	}

	sql := fmt.Sprintf("SELECT %s FROM `%s` WHERE `%s` = @%s",
		strings.Join(cols, ", "), q.Table, q.KeyColumn, keyParam)

	return sql, []bigquery.QueryParameter{{Name: keyParam, Value: key}}
}
