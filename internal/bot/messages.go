package bot

// All user-facing copy lives here. The course ships in Khmer; admin
// reports stay in English because the team reads them in English.
const (
	btnTodayLesson = "📖 មេរៀនថ្ងៃនេះ"
	btnMyProgress  = "📊 ដំណើរការរបស់ខ្ញុំ"
	btnMilestones  = "🏆 សមិទ្ធផល"
	btnContacts    = "📞 ទំនាក់ទំនង"

	btnMarkDone = "✅ បានបញ្ចប់"
	btnOverview = "📊 មើលដំណើរការ"

	msgWelcome = "សួស្តី! 👋\n\nស្វាគមន៍មកកាន់វគ្គសិក្សាចំណេះដឹងហិរញ្ញវត្ថុ ៧ ថ្ងៃ។ " +
		"រៀងរាល់ព្រឹក អ្នកនឹងទទួលបានមេរៀនថ្មីមួយ។ អានមេរៀន រួចចុច «បានបញ្ចប់» ដើម្បីបើកថ្ងៃបន្ទាប់។"

	msgNotPaid = "🔒 វគ្គសិក្សានេះសម្រាប់សមាជិកដែលបានចុះឈ្មោះប៉ុណ្ណោះ។ " +
		"សូមទាក់ទងក្រុមការងាររបស់យើងដើម្បីចូលរួម។"

	msgNoProgress = "អ្នកមិនទាន់ចាប់ផ្តើមវគ្គសិក្សានៅឡើយទេ។ សូមបើកមេរៀនថ្ងៃទី ១ ជាមុនសិន។"

	msgDayLocked = "🔒 មេរៀននេះមិនទាន់បើកនៅឡើយទេ។ សូមបញ្ចប់មេរៀនមុនៗជាមុនសិន។"

	msgUnknownDay = "មេរៀននេះមិនមាននៅក្នុងវគ្គសិក្សាទេ។"

	msgStoreError = "⚠️ មានបញ្ហាបច្ចេកទេសបន្តិចបន្តួច។ សូមព្យាយាមម្តងទៀតនៅពេលក្រោយ។"

	msgDayDone = "🎉 ល្អណាស់! អ្នកបានបញ្ចប់មេរៀនថ្ងៃនេះហើយ។"

	msgAlreadyDone = "អ្នកបានបញ្ចប់មេរៀននេះរួចហើយ។"

	msgProgramDone = "🎓 អបអរសាទរ! អ្នកបានបញ្ចប់វគ្គសិក្សាទាំងមូល!"

	msgRateLimited = "⚠️ អ្នកផ្ញើសារញឹកញាប់ពេក។ សូមរង់ចាំបន្តិច។"

	msgUnknownCommand = "ខ្ញុំមិនយល់សំណើនេះទេ។ សូមប្រើប៊ូតុងខាងក្រោម។"

	msgHelp = "ℹ️ របៀបប្រើប្រាស់៖\n\n" +
		"• «មេរៀនថ្ងៃនេះ» — បើកមេរៀនចុងក្រោយរបស់អ្នក\n" +
		"• «ដំណើរការរបស់ខ្ញុំ» — មើលថ្ងៃដែលបានបញ្ចប់\n" +
		"• «សមិទ្ធផល» — មើលសមិទ្ធផលរបស់អ្នក\n" +
		"• ចុច «បានបញ្ចប់» ក្រោមមេរៀននីមួយៗ ដើម្បីបើកថ្ងៃបន្ទាប់"
)
