// Package biz implements document ingestion, knowledge retrieval, risk
// scoring and plan summaries on top of the cyplan stores.
package biz
