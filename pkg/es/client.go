// Package es 提供了与 Elasticsearch 交互的客户端功能。
// 评估结果的不匹配/多余字段被索引到复核索引，供复核人员检索。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"extractlab-go/internal/config"
	"extractlab-go/internal/model"
	"extractlab-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(esCfg.IndexName)
}

// createIndexIfNotExists 检查复核索引是否存在，如果不存在则创建它
func createIndexIfNotExists(indexName string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	// 200 说明索引已存在
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"evaluation_id": { "type": "keyword" },
				"extraction_run_id": { "type": "keyword" },
				"template_id": { "type": "long" },
				"prompt_id": { "type": "long" },
				"evaluator_type": { "type": "keyword" },
				"accuracy": { "type": "float" },
				"mismatch_paths": { "type": "keyword" },
				"missing_paths": { "type": "keyword" },
				"extra_paths": { "type": "keyword" },
				"mismatch_summary": { "type": "text" },
				"created_at": { "type": "date" }
			}
		}
	}`

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)

	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexReview 将单条评估复核文档索引到 Elasticsearch。
func IndexReview(ctx context.Context, indexName string, doc model.EvaluationReview) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: doc.EvaluationID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引评估复核文档出错: %s", res.String())
		return errors.New("failed to index review document")
	}

	return nil
}

// SearchReviews 在复核索引中检索评估记录。
// fieldPath 非空时按不匹配/多余字段路径精确过滤，query 非空时对摘要做全文检索。
func SearchReviews(ctx context.Context, indexName, fieldPath, query string, size int) ([]model.EvaluationReview, error) {
	if size <= 0 {
		size = 20
	}

	must := make([]map[string]interface{}, 0, 2)
	if fieldPath != "" {
		must = append(must, map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{"term": map[string]interface{}{"mismatch_paths": fieldPath}},
					{"term": map[string]interface{}{"extra_paths": fieldPath}},
					{"term": map[string]interface{}{"missing_paths": fieldPath}},
				},
			},
		})
	}
	if query != "" {
		must = append(must, map[string]interface{}{
			"match": map[string]interface{}{"mismatch_summary": query},
		})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	body := map[string]interface{}{
		"size": size,
		"sort": []map[string]interface{}{{"created_at": map[string]interface{}{"order": "desc"}}},
		"query": map[string]interface{}{
			"bool": map[string]interface{}{"must": must},
		},
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(bytes.NewReader(bodyBytes)),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("检索复核索引失败: %s", res.String())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Source model.EvaluationReview `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析检索响应失败: %w", err)
	}

	reviews := make([]model.EvaluationReview, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		reviews = append(reviews, hit.Source)
	}
	return reviews, nil
}
