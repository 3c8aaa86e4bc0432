package web

import "html/template"

var setupTmpl = template.Must(template.New("setup").Parse(setupHTML))

var chatTmpl = template.Must(template.New("chat").Parse(chatHTML))

const setupHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>A Great Adventure</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
label { display: block; margin-top: 1rem; font-weight: bold; }
input[type=text], input[type=password], textarea { width: 100%; padding: .4rem; }
textarea { min-height: 6rem; }
button { margin-top: 1.5rem; padding: .6rem 1.4rem; }
small { color: #555; }
</style>
</head>
<body>
<h1>A Great Adventure</h1>
<form method="post" action="/start" enctype="multipart/form-data">
  <label>Gemini API Key</label>
  <input type="password" name="gemini_api_key" value="{{.GeminiAPIKey}}">
  <label>Replicate API Key</label>
  <input type="password" name="replicate_api_key" value="{{.ReplicateAPIKey}}">
  <label>Image Prompt</label>
  <input type="text" name="image_style_prompt" value="{{.ImageStylePrompt}}">
  <small>A couple of words to tune image generation to your liking. Fill using English language!</small>
  <label>Image Model</label>
  <input type="text" name="image_model" value="{{.ImageModel}}">
  <small>Another model from replicate.com/collections/text-to-image can be chosen, but the cost may differ.</small>
  <label>Upload Context Files</label>
  <input type="file" name="context_files" multiple accept=".pdf,.rtf,.docx,.txt">
  <small>Upload a TTRPG rulebook of your choice and desired context files, for example a favourite book.</small>
  <label>Initial Prompt</label>
  <textarea name="initial_prompt">{{.InitialPrompt}}</textarea>
  <small>This will be the first message sent to the model. Explain precisely what you expect from the Game Master.</small>
  <button type="submit">Start App</button>
</form>
</body>
</html>
`

const chatHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>A Great Adventure</title>
<style>
body { font-family: sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
#chat { border: 1px solid #ccc; padding: 1rem; height: 60vh; overflow-y: auto; }
.turn { margin: .6rem 0; white-space: pre-wrap; }
.turn.user { color: #143d8a; }
.turn.assistant { color: #203020; }
.turn img { max-width: 100%; display: block; margin-top: .4rem; }
form { display: flex; gap: .5rem; margin-top: 1rem; }
input[type=text] { flex: 1; padding: .5rem; }
</style>
</head>
<body>
<h1>A Great Adventure</h1>
<div id="chat"></div>
<form id="submit-form">
  <input type="text" id="message" placeholder="Your move..." autocomplete="off">
  <button type="submit" id="send">Send</button>
</form>
<script>
const chat = document.getElementById("chat");
const form = document.getElementById("submit-form");
const message = document.getElementById("message");
const send = document.getElementById("send");

function addTurn(turn) {
  const div = document.createElement("div");
  div.className = "turn " + turn.role;
  div.textContent = (turn.role === "user" ? "You: " : "GM: ") + turn.content;
  chat.appendChild(div);
  chat.scrollTop = chat.scrollHeight;
  return div;
}

function addImage(url) {
  const img = document.createElement("img");
  img.src = url;
  chat.lastElementChild.appendChild(img);
  chat.scrollTop = chat.scrollHeight;
}

fetch("/history").then(r => r.json()).then(turns => (turns || []).forEach(addTurn));

const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.onmessage = e => {
  const event = JSON.parse(e.data);
  if (event.type === "illustration") { addImage(event.imageUrl); }
};

form.addEventListener("submit", async e => {
  e.preventDefault();
  const text = message.value.trim();
  if (!text) return;
  // one turn in flight at a time
  send.disabled = true;
  message.disabled = true;
  addTurn({role: "user", content: text});
  message.value = "";
  try {
    const resp = await fetch("/submit", {
      method: "POST",
      headers: {"Content-Type": "application/x-www-form-urlencoded"},
      body: new URLSearchParams({message: text}),
    });
    const data = await resp.json();
    if (!resp.ok) {
      addTurn({role: "assistant", content: "[error] " + (data.error || resp.statusText)});
    } else {
      addTurn({role: "assistant", content: data.reply});
    }
  } catch (err) {
    addTurn({role: "assistant", content: "[error] " + err});
  } finally {
    send.disabled = false;
    message.disabled = false;
    message.focus();
  }
});
</script>
</body>
</html>
`
