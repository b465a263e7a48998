// Package main provides localization for the pedvoc CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Input":      "入力",
		"Output":     "出力先",
		"Conversion": "変換",
		"Preview":    "プレビュー",
		"Debug":      "デバッグ",
		"Logging":    "ログ",

		// Commands
		"Convert pedestrian datasets to Pascal VOC":                  "歩行者データセットを Pascal VOC 形式に変換",
		"Caltech Pedestrian dataset tools":                           "Caltech Pedestrian データセット用ツール",
		"Convert Caltech sets to a VOC dataset":                      "Caltech のセットを VOC データセットに変換",
		"Print frame and pedestrian statistics per sequence":         "シーケンスごとのフレーム数と歩行者数を表示",
		"Write a small synthetic Caltech tree for smoke tests":       "動作確認用の小さな合成 Caltech データを作成",
		"Convert VOC detection results to Caltech result files":      "VOC 形式の検出結果を Caltech 形式の結果ファイルに変換",
		"Draw annotations and detections over the frames of a video": "動画のフレームにアノテーションと検出結果を描画",
		"Show where to get the MATLAB evaluation code":               "MATLAB 評価コードの入手先を表示",

		// Common flags
		"YAML configuration file":                          "YAML 設定ファイル",
		"Environment file loaded before the configuration": "設定の前に読み込む環境変数ファイル",
		"Caltech dataset root (set00..set10, annotations)": "Caltech データセットのルート (set00..set10, annotations)",
		"Sets to process, e.g. 0,5,6-10":                   "処理するセット (例: 0,5,6-10)",
		"Path to the ffmpeg binary":                        "ffmpeg バイナリのパス",
		"Log level (debug, info, warn, error)":             "ログレベル (debug, info, warn, error)",
		"Suppress all log output":                          "すべてのログ出力を抑制",

		// Convert flags
		"VOC dataset directory (default: <root>/caltech_voc)":                     "VOC データセットのディレクトリ (デフォルト: <root>/caltech_voc)",
		"Markdown summary path (default: <output>/summary.md, \"-\" for plain text on stdout)": "Markdown サマリーのパス (デフォルト: <output>/summary.md、\"-\" で標準出力にテキスト表示)",
		"Conversion mode (voc, caltech)":                                          "変換モード (voc, caltech)",
		"Sequences decoded in parallel (default: number of CPUs)":                 "並列にデコードするシーケンス数 (デフォルト: CPU 数)",
		"Keep every n-th frame of test sets in caltech mode":                      "caltech モードでテストセットの n フレームごとに保存",
		"VOC class name of pedestrians":                                           "歩行者の VOC クラス名",
		"Save decoded annotations as JSON":                                        "デコードしたアノテーションを JSON で保存",
		"Directory for debug output":                                              "デバッグ出力用ディレクトリ",

		// Inspect
		"Also open the videos and report their size": "動画も開いてサイズを表示",
		"Sequence":      "シーケンス",
		"Frames":        "フレーム数",
		"Persons":       "歩行者数",
		"Objects":       "オブジェクト",
		"Video":         "動画",

		// Synth flags
		"Sequences per set":   "セットあたりのシーケンス数",
		"Frames per sequence": "シーケンスあたりのフレーム数",
		"Frame width":         "フレームの幅",
		"Frame height":        "フレームの高さ",

		// Dets
		"<results.txt>...": "<結果ファイル>...",
		"VOC dataset the detections refer to (default: <root>/caltech_voc)": "検出結果が参照する VOC データセット (デフォルト: <root>/caltech_voc)",
		"Directory receiving setXX/VYYY.txt (required)":                     "setXX/VYYY.txt の出力先ディレクトリ（必須）",
		"No detection result files given":                                   "検出結果ファイルが指定されていません",

		// Preview
		"<video>":                                    "<動画>",
		"Annotation file (.vbb) drawn in red":        "赤で描画するアノテーションファイル (.vbb)",
		"Caltech result file drawn in green":         "緑で描画する Caltech 形式の結果ファイル",
		"Set name (default: directory of the video)": "セット名 (デフォルト: 動画のディレクトリ名)",
		"Output .mp4 file or PNG directory (required)": "出力 .mp4 ファイルまたは PNG ディレクトリ（必須）",
		"Keep every n-th frame":                      "n フレームごとに描画",
		"Minimum detection score":                    "検出スコアの下限",
		"Scale frames down to this width":            "この幅までフレームを縮小",
		"Video frame rate":                           "動画のフレームレート",
		"Video quality (CRF, lower is better)":       "動画品質 (CRF、小さいほど高品質)",
		"Exactly one video is required":              "動画を 1 つだけ指定してください",

		// Eval
		"Evaluation runs in MATLAB with the Caltech toolboxes:": "評価は Caltech のツールボックスを使って MATLAB で行います:",
		"Convert detections with \"pedvoc caltech dets\" and place them under data-USA/res.": "検出結果を \"pedvoc caltech dets\" で変換し、data-USA/res 以下に配置してください。",

		// Signals
		"Interrupted, shutting down...": "中断されました。終了しています...",

		// Summary report
		"Conversion Summary":      "変換サマリー",
		"Item":                    "項目",
		"Value":                   "値",
		"Run ID":                  "実行 ID",
		"Mode":                    "モード",
		"Dataset Root":            "データセットのルート",
		"Workers":                 "ワーカー数",
		"Test Frame Interval":     "テストフレーム間隔",
		"Duration":                "所要時間",
		"Sets":                    "セット",
		"Set":                     "セット",
		"Split":                   "分割",
		"Sequences":               "シーケンス数",
		"Person Frames":           "歩行者フレーム数",
		"Frames Saved":            "保存フレーム数",
		"Exported":                "出力数",
		"Skipped":                 "スキップ数",
		"Errors":                  "エラー",
		"Total":                   "合計",
		"No sets were converted.": "変換されたセットはありません。",
		"Image Sets":              "イメージセット",
		"Fake test annotations":   "テスト用の空アノテーション",
		"Generated at":            "生成日時",
	})
}
