package team

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/teamadmin/pkg/aggregate"
	"github.com/Sternrassler/teamadmin/pkg/cache"
	"github.com/Sternrassler/teamadmin/pkg/client"
	"github.com/Sternrassler/teamadmin/pkg/pagination"
)

// Paper endpoints.
const (
	EndpointPaperDocsList         = "paper/docs/list"
	EndpointPaperDocsListContinue = "paper/docs/list/continue"
	EndpointPaperGetMetadata      = "paper/docs/get_metadata"
)

// CacheKindPaperMetadata is the cache kind of Paper document metadata.
const CacheKindPaperMetadata = "paper_metadata"

// PaperDocSource lists the Paper documents created by one member.
type PaperDocSource struct {
	API    API
	Member Member
	Limit  int
}

var _ pagination.Source[PaperDoc] = (*PaperDocSource)(nil)

// FetchFirst implements pagination.Source.
func (s *PaperDocSource) FetchFirst(ctx context.Context) (*pagination.Page[PaperDoc], error) {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	body := map[string]any{"filter_by": "docs_created", "limit": limit}

	var w wirePaperDocsPage
	if err := s.API.Call(ctx, EndpointPaperDocsList, body, &w, client.AsMember(s.Member.TeamMemberID)); err != nil {
		return nil, err
	}
	return w.page(EndpointPaperDocsList, s.Member)
}

// FetchNext implements pagination.Source.
func (s *PaperDocSource) FetchNext(ctx context.Context, cursor string) (*pagination.Page[PaperDoc], error) {
	var w wirePaperDocsPage
	if err := s.API.Call(ctx, EndpointPaperDocsListContinue, map[string]string{"cursor": cursor}, &w, client.AsMember(s.Member.TeamMemberID)); err != nil {
		return nil, err
	}
	return w.page(EndpointPaperDocsListContinue, s.Member)
}

// PaperDocsOf lists the documents of every member, member by member.
func PaperDocsOf(api API, members []Member, limit int) pagination.Source[PaperDoc] {
	sources := make([]pagination.Source[PaperDoc], 0, len(members))
	for _, m := range members {
		sources = append(sources, &PaperDocSource{API: api, Member: m, Limit: limit})
	}
	return pagination.Chain(sources...)
}

// GetPaperMetadata fetches the metadata of one document as memberID.
func GetPaperMetadata(ctx context.Context, api API, docID, memberID string) (PaperMetadata, error) {
	var w wirePaperMetadata
	if err := api.Call(ctx, EndpointPaperGetMetadata, map[string]string{"doc_id": docID}, &w, client.AsMember(memberID)); err != nil {
		return PaperMetadata{}, err
	}
	return w.metadata(EndpointPaperGetMetadata)
}

// MetadataEnricher merges Paper metadata into each document. With a non-nil
// cache, metadata is read from and written to it for ttl.
func MetadataEnricher(api API, mc *cache.Manager, ttl time.Duration) aggregate.Enricher[PaperDoc] {
	return func(ctx context.Context, doc PaperDoc) (PaperDoc, error) {
		key := cache.Key{
			Kind:  CacheKindPaperMetadata,
			ID:    doc.DocID,
			Scope: map[string]string{"member": doc.MemberID},
		}

		if mc != nil {
			var meta PaperMetadata
			err := mc.GetJSON(ctx, key, &meta)
			if err == nil {
				return meta.Apply(doc), nil
			}
			if !errors.Is(err, cache.ErrCacheMiss) {
				log.Warn().Err(err).Str("doc_id", doc.DocID).Msg("Metadata cache read failed")
			}
		}

		meta, err := GetPaperMetadata(ctx, api, doc.DocID, doc.MemberID)
		if err != nil {
			return doc, err
		}

		if mc != nil && ttl > 0 {
			if err := mc.SetJSON(ctx, key, meta, ttl); err != nil {
				log.Warn().Err(err).Str("doc_id", doc.DocID).Msg("Metadata cache write failed")
			}
		}
		return meta.Apply(doc), nil
	}
}
