// Package optimistic は楽観的更新の適用と巻き戻しを提供する。
package optimistic

import "context"

// Apply はupdateで先に状態を変更してからactionを実行し、
// actionが失敗した場合はrevertで元に戻してそのエラーを返す。
// update・revertがnilの場合は何もしない。
func Apply(ctx context.Context, update, revert func(), action func(ctx context.Context) error) error {
	if update != nil {
		update()
	}
	if err := action(ctx); err != nil {
		if revert != nil {
			revert()
		}
		return err
	}
	return nil
}
