package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Conversion (info)
		"Converting %d sets in %s mode":        "%d セットを %s モードで変換中",
		"Parsing %s":                           "%s を解析中",
		"%s: %d images exported (%d skipped)":  "%s: %d 枚の画像を出力しました (%d 枚スキップ)",
		"Caltech in VOC format saved in %s":    "VOC 形式の Caltech を %s に保存しました",
		"Wrote %d fake test annotations":       "テスト用の空アノテーションを %d 件書き込みました",
		"Reusing extracted frames in %s":       "%s の抽出済みフレームを再利用します",
		"Summary written to %s":                "サマリーを %s に書き込みました",
		"%d sequences failed":                  "%d シーケンスが失敗しました",

		// Conversion (warnings and errors)
		"No video for %s/%s":                          "%s/%s の動画がありません",
		"Failed to create dataset: %s":                "データセットを作成できませんでした: %s",
		"Failed to export %s: %s":                     "%s を出力できませんでした: %s",
		"Failed to write image sets: %s":              "イメージセットを書き込めませんでした: %s",
		"Failed to write fake test annotations: %s":   "テスト用の空アノテーションを書き込めませんでした: %s",
		"Failed to save debug output: %s":             "デバッグ出力を保存できませんでした: %s",
		"Skipping %s: %s":                             "%s をスキップします: %s",
		"%s":                                          "%s",

		// Extract stage
		"Decoding annotations %s":                                "アノテーション %s をデコード中",
		"Sequence %s/%s has no person frames":                    "シーケンス %s/%s に歩行者のフレームがありません",
		"Sequence %s/%s: %d person frames, %d of %d frames saved": "シーケンス %s/%s: 歩行者フレーム %d, %d / %d フレームを保存",
		"Sequence %s/%s truncated at frame %d: %s":               "シーケンス %s/%s はフレーム %d で途切れています: %s",
		"Video %s does not match annotation %s":                  "動画 %s はアノテーション %s と一致しません",

		// Export stage
		"Exported %d %s frames of %s (%d skipped)": "%[3]s の %[2]s フレームを %[1]d 枚出力しました (%[4]d 枚スキップ)",
		"Ignoring %s: %s":                          "%s を無視します: %s",

		// Preview
		"Previewing %d of %d frames of %s/%s": "%[3]s/%[4]s の %[2]d フレーム中 %[1]d フレームをプレビュー中",
		"Rendering %d frames with %d workers": "%d フレームを %d ワーカーで描画中",
		"Preview written to %s (%d bytes)":    "プレビューを %s に書き込みました (%d バイト)",
		"Preview written to %s (%d frames)":   "プレビューを %s に書き込みました (%d フレーム)",

		// Encode stage
		"Encoding %d frames at %.1f fps": "%d フレームを %.1f fps でエンコード中",
		"Video encoded: %d bytes":        "動画をエンコードしました: %d バイト",

		// Synth and detections
		"Wrote %s and %s": "%s と %s を書き込みました",
		"Generated %d sequences (%d frames, %d person frames) in %s": "%[4]s に %[1]d シーケンスを生成しました (%[2]d フレーム, 歩行者フレーム %[3]d)",
		"Read %d detections from %s":                                 "%[2]s から %[1]d 件の検出結果を読み込みました",
		"Wrote %d detections to %d files in %s":                      "%[3]s に %[1]d 件の検出結果を %[2]d ファイルで書き込みました",
	})
}
