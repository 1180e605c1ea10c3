package autorefresh

// Page that frames the served file and reloads the frame on every refresh
// event. The stream is reopened 5 seconds after an error, carrying the last
// seen generation so a refresh missed while disconnected is replayed.
const indexPage = `<!doctype html>
<html>
<head>
	<title>File</title>
	<style>
		body {
			margin: 0;
			display: flex;
			flex-flow: column nowrap;
			height: 100vh;
		}
		#error {
			margin: 0;
			background: red;
			color: white;
		}
		#error.hidden {
			display: none;
		}
		iframe#fileFrame {
			border: 0;
			flex: 1;
		}
	</style>
	<script type="text/javascript">
	window.addEventListener("load", function() {
		const fileFrame = document.getElementById("fileFrame")
		const errorElem = document.getElementById("error")
		const fileSrc = fileFrame.src
		let lastId = null
		let es = null

		function setError(msg) {
			if (!msg) {
				errorElem.classList.add("hidden")
				errorElem.textContent = ""
				return
			}
			errorElem.classList.remove("hidden")
			errorElem.textContent = msg
		}

		function connect() {
			const url = lastId === null ? "/refresh" : "/refresh?last=" + encodeURIComponent(lastId)
			es = new EventSource(url)
			es.addEventListener("open", function(e) {
				console.debug("autorefresh: connected to", url)
				setError(null)
			})
			es.addEventListener("refresh", function(e) {
				console.debug("autorefresh: got 'refresh' event", e.data)
				lastId = e.lastEventId || e.data
				setError(null)
				fileFrame.src = fileSrc
			})
			es.addEventListener("error", function(e) {
				console.debug("autorefresh: eventsource error", e)
				setError("connection lost: " + Date())
				e.target.close()
				setTimeout(connect, 5000)
			})
		}

		window.addEventListener("beforeunload", function() {
			if (es) es.close()
		})
		connect()
	})
	</script>
</head>
<body>
	<pre id="error" class="hidden"></pre>
	<iframe id="fileFrame" src="/file"></iframe>
</body>
</html>
`
