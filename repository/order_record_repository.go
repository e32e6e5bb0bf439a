package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/esim-relay/models"
	"github.com/amirphl/esim-relay/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OrderRecordRepositoryImpl implements OrderRecordRepository
type OrderRecordRepositoryImpl struct {
	*BaseRepository[models.OrderRecord, models.OrderRecordFilter]
}

func NewOrderRecordRepository(store *Store) OrderRecordRepository {
	return &OrderRecordRepositoryImpl{
		BaseRepository: NewBaseRepository[models.OrderRecord, models.OrderRecordFilter](store),
	}
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (r *OrderRecordRepositoryImpl) byColumn(ctx context.Context, column, value string) (*models.OrderRecord, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var row models.OrderRecord
	if err := db.Where(column+" = ?", value).Order("id DESC").First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find order record by %s: %w", column, err)
	}
	return &row, nil
}

func (r *OrderRecordRepositoryImpl) ByProductOrderID(ctx context.Context, productOrderID string) (*models.OrderRecord, error) {
	return r.byColumn(ctx, "product_order_id", productOrderID)
}

func (r *OrderRecordRepositoryImpl) ByOrderTid(ctx context.Context, orderTid string) (*models.OrderRecord, error) {
	return r.byColumn(ctx, "order_tid", orderTid)
}

func (r *OrderRecordRepositoryImpl) ExistsByProductOrderID(ctx context.Context, productOrderID string) (bool, error) {
	return r.Exists(ctx, models.OrderRecordFilter{ProductOrderID: &productOrderID})
}

// updateByOrderTid sets one column on the record keyed by orderTid.
// MySQL reports zero affected rows when the value is unchanged, so a miss is confirmed with a count.
func (r *OrderRecordRepositoryImpl) updateByOrderTid(ctx context.Context, orderTid, column string, value any) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.OrderRecord{}).Where("order_tid = ?", orderTid).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s for order %s: %w", column, orderTid, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	exists, err := r.Exists(ctx, models.OrderRecordFilter{OrderTid: &orderTid})
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("order %s: %w", orderTid, ErrRecordNotFound)
	}
	return nil
}

func (r *OrderRecordRepositoryImpl) UpdateSubUnitPins(ctx context.Context, orderTid, pins string) error {
	return r.updateByOrderTid(ctx, orderTid, "sn_pin", pins)
}

func (r *OrderRecordRepositoryImpl) UpdateSubUnitCodes(ctx context.Context, orderTid, codes string) error {
	return r.updateByOrderTid(ctx, orderTid, "sn_code", codes)
}

func (r *OrderRecordRepositoryImpl) UpdateSubUnits(ctx context.Context, orderTid string, units []models.SubUnit) error {
	return r.updateByOrderTid(ctx, orderTid, "sub_units", datatypes.JSONSlice[models.SubUnit](units))
}

// candidatesForPin narrows rows in SQL; callers confirm token membership with utils.MatchPinToken
func (r *OrderRecordRepositoryImpl) candidatesForPin(db *gorm.DB, pin string) ([]*models.OrderRecord, error) {
	var rows []*models.OrderRecord
	pattern := "%" + likeEscaper.Replace(pin) + "%"
	err := db.Where("sn_pin = ? OR sn_pin LIKE ? ESCAPE '!'", pin, pattern).Order("id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find candidates for pin: %w", err)
	}
	matched := rows[:0]
	for _, row := range rows {
		if utils.MatchPinToken(utils.Deref(row.SnPin), pin) {
			matched = append(matched, row)
		}
	}
	return matched, nil
}

// UpdateActivationArtifacts writes artifactString to the record whose pins equal pinString.
// Without an exact match each pin token is matched on its own and its artifact appended,
// summing affected rows over all tokens.
func (r *OrderRecordRepositoryImpl) UpdateActivationArtifacts(ctx context.Context, pinString, artifactString string) (int64, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return 0, err
	}

	var exact []*models.OrderRecord
	if err := db.Where("sn_pin = ?", pinString).Find(&exact).Error; err != nil {
		return 0, fmt.Errorf("failed to find records by pins: %w", err)
	}
	if len(exact) > 0 {
		artifacts := utils.SplitTokens(artifactString)
		var affected int64
		for _, row := range exact {
			units := alignSubUnits(row)
			for i := range units {
				if i < len(artifacts) {
					units[i].Artifact = artifacts[i]
				}
			}
			res := db.Model(&models.OrderRecord{}).Where("id = ?", row.ID).Updates(map[string]any{
				"qr":        artifactString,
				"sub_units": datatypes.JSONSlice[models.SubUnit](units),
			})
			if res.Error != nil {
				return affected, fmt.Errorf("failed to update artifacts for record %d: %w", row.ID, res.Error)
			}
			affected += res.RowsAffected
		}
		return affected, nil
	}

	pins := utils.SplitTokens(pinString)
	artifacts := utils.SplitTokens(artifactString)
	var affected int64
	for i, pin := range pins {
		if pin == "" {
			continue
		}
		artifact := artifactString
		if len(artifacts) == len(pins) {
			artifact = artifacts[i]
		}
		rows, err := r.candidatesForPin(db, pin)
		if err != nil {
			return affected, err
		}
		for _, row := range rows {
			units := alignSubUnits(row)
			if idx := utils.TokenIndex(utils.Deref(row.SnPin), pin); idx >= 0 {
				units[idx].Artifact = artifact
			}
			merged := utils.AppendToken(utils.Deref(row.QR), artifact)
			res := db.Model(&models.OrderRecord{}).Where("id = ?", row.ID).Updates(map[string]any{
				"qr":        merged,
				"sub_units": datatypes.JSONSlice[models.SubUnit](units),
			})
			if res.Error != nil {
				return affected, fmt.Errorf("failed to update artifacts for record %d: %w", row.ID, res.Error)
			}
			affected += res.RowsAffected
			row.QR = &merged
		}
	}
	if affected == 0 {
		return 0, fmt.Errorf("pins %q: %w", pinString, ErrRecordNotFound)
	}
	return affected, nil
}

// MergeActivationArtifact stores artifact at the position of pin within the matched record
func (r *OrderRecordRepositoryImpl) MergeActivationArtifact(ctx context.Context, pin, artifact string) (*models.OrderRecord, error) {
	row, err := r.LookupByPinOrSubstring(ctx, pin)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("pin %q: %w", pin, ErrRecordNotFound)
	}

	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}

	units := alignSubUnits(row)
	var merged string
	if idx := utils.TokenIndex(utils.Deref(row.SnPin), pin); idx >= 0 {
		merged = utils.SetTokenAt(utils.Deref(row.QR), idx, artifact)
		units[idx].Artifact = artifact
	} else {
		merged = utils.AppendToken(utils.Deref(row.QR), artifact)
	}

	err = db.Model(&models.OrderRecord{}).Where("id = ?", row.ID).Updates(map[string]any{
		"qr":        merged,
		"sub_units": datatypes.JSONSlice[models.SubUnit](units),
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to merge artifact for record %d: %w", row.ID, err)
	}

	row.QR = &merged
	row.SubUnits = units
	return row, nil
}

// LookupByPinOrSubstring returns the record whose pins equal pinString, else the record holding
// any of its tokens. Duplicates resolve to the newest row on both paths. Returns nil when nothing matches.
func (r *OrderRecordRepositoryImpl) LookupByPinOrSubstring(ctx context.Context, pinString string) (*models.OrderRecord, error) {
	if pinString == "" {
		return nil, nil
	}
	row, err := r.byColumn(ctx, "sn_pin", pinString)
	if err != nil || row != nil {
		return row, err
	}

	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	for _, pin := range utils.SplitTokens(pinString) {
		if pin == "" {
			continue
		}
		rows, err := r.candidatesForPin(db, pin)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			return rows[0], nil
		}
	}
	return nil, nil
}

// SetOrderTid assigns the vendor tracking reference once
func (r *OrderRecordRepositoryImpl) SetOrderTid(ctx context.Context, id uint, orderTid string) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.OrderRecord{}).Where("id = ? AND order_tid IS NULL", id).Update("order_tid", orderTid)
	if res.Error != nil {
		return fmt.Errorf("failed to set order tid for record %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("record %d without order tid: %w", id, ErrRecordNotFound)
	}
	return nil
}

func (r *OrderRecordRepositoryImpl) MarkNotificationSent(ctx context.Context, id uint) error {
	db, err := r.getDB(ctx)
	if err != nil {
		return err
	}
	res := db.Model(&models.OrderRecord{}).Where("id = ?", id).Update("kakao_send_yn", utils.NotificationSentYes)
	if res.Error != nil {
		return fmt.Errorf("failed to mark notification sent for record %d: %w", id, res.Error)
	}
	return nil
}

func (r *OrderRecordRepositoryImpl) MarkDispatched(ctx context.Context, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db, err := r.getDB(ctx)
	if err != nil {
		return 0, err
	}
	res := db.Model(&models.OrderRecord{}).
		Where("id IN ? AND dispatch_status = ?", ids, models.DispatchStatusPending).
		Update("dispatch_status", models.DispatchStatusDispatched)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to mark records dispatched: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *OrderRecordRepositoryImpl) ListAwaitingProvisioning(ctx context.Context, limit int) ([]*models.OrderRecord, error) {
	awaiting := true
	notSent := utils.NotificationSentNo
	return r.ByFilter(ctx, models.OrderRecordFilter{AwaitingProvisioning: &awaiting, KakaoSendYN: &notSent}, "id ASC", limit, 0)
}

func (r *OrderRecordRepositoryImpl) ListPendingDispatch(ctx context.Context, limit int) ([]*models.OrderRecord, error) {
	pending := models.DispatchStatusPending
	return r.ByFilter(ctx, models.OrderRecordFilter{DispatchStatus: &pending}, "created_at ASC", limit, 0)
}

func (r *OrderRecordRepositoryImpl) ListLatest(ctx context.Context, limit int) ([]*models.OrderRecord, error) {
	return r.ByFilter(ctx, models.OrderRecordFilter{}, "created_at DESC, id DESC", limit, 0)
}

// Stats counts all records, those with an activation artifact, the remainder and those created since dayStart
func (r *OrderRecordRepositoryImpl) Stats(ctx context.Context, dayStart time.Time) (*models.OrderStats, error) {
	var stats models.OrderStats
	var err error

	if stats.Total, err = r.Count(ctx, models.OrderRecordFilter{}); err != nil {
		return nil, err
	}
	hasArtifacts := true
	if stats.Sent, err = r.Count(ctx, models.OrderRecordFilter{HasArtifacts: &hasArtifacts}); err != nil {
		return nil, err
	}
	stats.Pending = stats.Total - stats.Sent
	if stats.Today, err = r.Count(ctx, models.OrderRecordFilter{CreatedAfter: &dayStart}); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *OrderRecordRepositoryImpl) applyFilter(db *gorm.DB, f models.OrderRecordFilter) *gorm.DB {
	if f.ID != nil {
		db = db.Where("id = ?", *f.ID)
	}
	if f.ProductOrderID != nil {
		db = db.Where("product_order_id = ?", *f.ProductOrderID)
	}
	if f.OrderTid != nil {
		db = db.Where("order_tid = ?", *f.OrderTid)
	}
	if f.DispatchStatus != nil {
		db = db.Where("dispatch_status = ?", *f.DispatchStatus)
	}
	if f.KakaoSendYN != nil {
		db = db.Where("kakao_send_yn = ?", *f.KakaoSendYN)
	}
	if f.AwaitingProvisioning != nil {
		if *f.AwaitingProvisioning {
			db = db.Where("order_tid IS NULL")
		} else {
			db = db.Where("order_tid IS NOT NULL")
		}
	}
	if f.HasArtifacts != nil {
		if *f.HasArtifacts {
			db = db.Where("qr IS NOT NULL AND qr <> ''")
		} else {
			db = db.Where("qr IS NULL OR qr = ''")
		}
	}
	if f.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *f.CreatedAfter)
	}
	if f.CreatedBefore != nil {
		db = db.Where("created_at < ?", *f.CreatedBefore)
	}
	return db
}

func (r *OrderRecordRepositoryImpl) ByFilter(ctx context.Context, filter models.OrderRecordFilter, orderBy string, limit, offset int) ([]*models.OrderRecord, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return nil, err
	}
	query := r.applyFilter(db.Model(&models.OrderRecord{}), filter)
	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	var rows []*models.OrderRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *OrderRecordRepositoryImpl) Count(ctx context.Context, filter models.OrderRecordFilter) (int64, error) {
	db, err := r.getDB(ctx)
	if err != nil {
		return 0, err
	}
	query := r.applyFilter(db.Model(&models.OrderRecord{}), filter)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *OrderRecordRepositoryImpl) Exists(ctx context.Context, filter models.OrderRecordFilter) (bool, error) {
	c, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}
	return c > 0, nil
}

// alignSubUnits returns the record's sub-units resized to its pin tokens, filling pins and codes positionally
func alignSubUnits(row *models.OrderRecord) []models.SubUnit {
	pins := utils.SplitTokens(utils.Deref(row.SnPin))
	codes := utils.SplitTokens(utils.Deref(row.SnCode))
	units := make([]models.SubUnit, len(pins))
	copy(units, row.SubUnits)
	for i, pin := range pins {
		units[i].Pin = pin
		if i < len(codes) {
			units[i].Code = codes[i]
		}
	}
	return units
}
