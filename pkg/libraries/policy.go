package libraries

import (
	"context"
	"database/sql"

	"github.com/campuskeep/circulate/pkg/errcodes"
	"github.com/campuskeep/circulate/pkg/models"
	"github.com/pkg/errors"
)

// ResolvePolicy returns the borrowing rules for a library that is accepting
// new borrows and reservations. Inactive and maintenance libraries fail with
// PolicyError; flows that must keep working for them (returns, cancellations,
// promotion of queued holds) use ResolvePolicyAnyStatus instead.
func (svc *Service) ResolvePolicy(ctx context.Context, libraryID int) (models.Policy, error) {
	library, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &libraryID})
	if err != nil {
		return models.Policy{}, err
	}
	if library.DeletedAt != nil {
		return models.Policy{}, errcodes.NotFound("Library")
	}
	if library.Status != models.LibraryStatusActive {
		return models.Policy{}, errcodes.PolicyError("Library is not accepting new borrows or reservations.")
	}
	return library.Policy(), nil
}

// ResolvePolicyAnyStatus returns the borrowing rules regardless of the
// library's status.
func (svc *Service) ResolvePolicyAnyStatus(ctx context.Context, libraryID int) (models.Policy, error) {
	library, err := svc.RetrieveLibrary(ctx, RetrieveLibraryOptions{ID: &libraryID})
	if err != nil {
		return models.Policy{}, err
	}
	return library.Policy(), nil
}

// ResolvePolicyForCopy resolves the policy of the library owning the given
// copy's book.
func (svc *Service) ResolvePolicyForCopy(ctx context.Context, copyID int, anyStatus bool) (models.Policy, error) {
	libraryID, err := svc.libraryIDForCopy(ctx, copyID)
	if err != nil {
		return models.Policy{}, err
	}
	if anyStatus {
		return svc.ResolvePolicyAnyStatus(ctx, libraryID)
	}
	return svc.ResolvePolicy(ctx, libraryID)
}

func (svc *Service) libraryIDForCopy(ctx context.Context, copyID int) (int, error) {
	var libraryID int
	err := svc.db.
		NewSelect().
		Model((*models.BookCopy)(nil)).
		Column("b.library_id").
		Join("JOIN books AS b ON b.id = bc.book_id").
		Where("bc.id = ?", copyID).
		Scan(ctx, &libraryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errcodes.NotFound("Book copy")
		}
		return 0, errors.WithStack(err)
	}
	return libraryID, nil
}
