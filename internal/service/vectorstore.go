package service

import (
	"context"
	"log"
	"sort"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/retry"
)

// VectorRepositoryInterface is the pgvector persistence used by VectorStore.
type VectorRepositoryInterface interface {
	HasVectors(ctx context.Context, namespace string) (bool, error)
	ReplaceNamespace(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error
	Nearest(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error)
}

// VectorStore is the namespace-per-document gateway over the vector repository.
type VectorStore struct {
	repo   VectorRepositoryInterface
	policy retry.Policy
}

// NewVectorStore retries upserts 3 times, 1s apart.
func NewVectorStore(repo VectorRepositoryInterface) *VectorStore {
	return NewVectorStoreWithPolicy(repo, retry.DefaultPolicy(domain.IsRetryable))
}

// NewVectorStoreWithPolicy creates a VectorStore with a custom upsert retry policy (for testing)
func NewVectorStoreWithPolicy(repo VectorRepositoryInterface, policy retry.Policy) *VectorStore {
	if policy.Retryable == nil {
		policy.Retryable = domain.IsRetryable
	}
	if policy.OnRetry == nil {
		policy.OnRetry = func(attempt int, err error) {
			log.Printf("vector store: upsert attempt %d failed: %v", attempt, err)
		}
	}
	return &VectorStore{repo: repo, policy: policy}
}

// NamespaceHasVectors reports whether any chunk is stored for namespace. Lookup
// failures count as absent.
func (v *VectorStore) NamespaceHasVectors(ctx context.Context, namespace string) bool {
	ok, err := v.repo.HasVectors(ctx, namespace)
	if err != nil {
		log.Printf("vector store: existence check for %s failed: %v", namespace, err)
		return false
	}
	return ok
}

// Upsert replaces the namespace's vectors with chunks.
func (v *VectorStore) Upsert(ctx context.Context, namespace string, chunks []domain.EmbeddedChunk) error {
	return retry.Run(ctx, v.policy, func(ctx context.Context) error {
		return storeError(v.repo.ReplaceNamespace(ctx, namespace, chunks))
	})
}

// QueryTopK returns up to k passages from namespace, most similar first.
func (v *VectorStore) QueryTopK(ctx context.Context, namespace string, query []float32, k int) ([]domain.ScoredPassage, error) {
	passages, err := v.repo.Nearest(ctx, namespace, query, k)
	if err != nil {
		return nil, storeError(err)
	}
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
	if k > 0 && len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// storeError marks raw driver errors transient. Cancellation still unwraps to
// context.Canceled, which IsRetryable rejects.
func storeError(err error) error {
	if err == nil || domain.ErrorCode(err) != "" {
		return err
	}
	return domain.NewDomainErrorWithCause(domain.ErrCodeTransient, domain.ErrVectorStore.Message, err)
}
